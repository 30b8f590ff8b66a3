package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jinzhu/configor"
	"github.com/joho/godotenv"
)

const envPrefix = "WSSYNC"

type AppConfig struct {
	Concurrency int    `default:"1"`
	Timeout     int    `default:"60"`
	Retries     int    `default:"3"`
	LogLevel    string `default:"info"`
	LogFormat   string `default:"text"`
	MetricsAddr string
	StagingFile string `default:"clusters.json"`
	Workspaces  []WorkspaceConfig
	GitHub      GitHubConfig
	Git         GitConfig
	Sync        []SyncConfig
	Deploy      []DeployConfig
	Backup      []BackupConfig
	Provider    ProviderConfig
	Notify      NotifyConfig
}

// WorkspaceConfig names one workspace. The token can be given inline or by the
// name of an environment variable holding it.
type WorkspaceConfig struct {
	Name     string `required:"true"`
	URL      string `required:"true"`
	Token    string
	TokenEnv string
}

type GitHubConfig struct {
	BaseURL string `default:"https://api.github.com"`
	Owner   string
	Repo    string
	Ref     string
	Token   string `env:"GITHUB_TOKEN"`
}

type GitConfig struct {
	URL   string
	Ref   string
	Token string `env:"GIT_TOKEN"`
}

type SyncConfig struct {
	Name            string
	Source          string `required:"true"`
	Destination     string `required:"true"`
	Root            string `default:"/"`
	DestinationRoot string
	Interval        int
	Include         []string
	Exclude         []string
	DryRun          bool
}

type DeployConfig struct {
	Name       string
	Source     string `default:"github"`
	Path       string
	Workspaces []string `required:"true"`
	UserRoot   string   `default:"/Users"`
	Users      []UserGrant
	Include    []string
	Exclude    []string
}

type UserGrant struct {
	Email      string `required:"true"`
	Permission string `default:"CAN_MANAGE"`
}

type BackupConfig struct {
	Workspace         string `required:"true"`
	Root              string `default:"/"`
	DestinationBucket string `required:"true"`
	At                string
}

type ProviderConfig struct {
	Name    string `default:"aws"`
	Region  string
	Profile string
}

type NotifyConfig struct {
	ID      string
	Region  string
	Profile string
}

// WorkspaceRef is the resolved, immutable address of a workspace.
type WorkspaceRef struct {
	Name       string
	BaseURL    string
	Credential string
}

func (s SyncConfig) JobName() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("%s:%s->%s", s.Source, s.Root, s.Destination)
}

func (d DeployConfig) JobName() string {
	if d.Name != "" {
		return d.Name
	}
	return fmt.Sprintf("%s->%s", d.Source, strings.Join(d.Workspaces, ","))
}

// LoadConfig reads the optional .env file into the process environment and
// then the config file, with WSSYNC_ prefixed env overrides.
func LoadConfig(configFile string, envFile string) (AppConfig, error) {
	var appConfig AppConfig

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return appConfig, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	loader := configor.New(&configor.Config{ENVPrefix: envPrefix})
	if err := loader.Load(&appConfig, configFile); err != nil {
		return appConfig, fmt.Errorf("load config %s: %w", configFile, err)
	}
	if appConfig.Concurrency < 1 {
		appConfig.Concurrency = 1
	}

	return appConfig, nil
}

func (c AppConfig) Workspace(name string) (WorkspaceRef, error) {
	for _, ws := range c.Workspaces {
		if !strings.EqualFold(ws.Name, name) {
			continue
		}
		token := ws.Token
		if token == "" && ws.TokenEnv != "" {
			token = os.Getenv(ws.TokenEnv)
		}
		if token == "" {
			return WorkspaceRef{}, fmt.Errorf("workspace %s has no token", ws.Name)
		}
		return WorkspaceRef{
			Name:       ws.Name,
			BaseURL:    strings.TrimSuffix(ws.URL, "/"),
			Credential: token,
		}, nil
	}

	return WorkspaceRef{}, fmt.Errorf("%w: %s", ErrUnknownWorkspace, name)
}

func (c AppConfig) CallTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c AppConfig) ClientFromConfig() (BucketClient, error) {
	var bucketClient BucketClient

	switch c.Provider.Name {
	case "aws":
		cfg, err := config.LoadDefaultConfig(context.TODO(),
			config.WithSharedConfigProfile(c.Provider.Profile),
			config.WithRegion(c.Provider.Region))
		if err != nil {
			return bucketClient, fmt.Errorf("Error creating s3 client: %+v", err)
		}
		bucketClient = &S3Client{Client: s3.NewFromConfig(cfg)}
	case "gcs":
		gcsClient, err := storage.NewClient(context.TODO())
		if err != nil {
			return bucketClient, fmt.Errorf("Error creating gcs client: %+v", err)
		}
		bucketClient = &GCSClient{Client: gcsClient}
	default:
		return bucketClient, fmt.Errorf("Unknown cloud provider: %s", c.Provider.Name)
	}

	return bucketClient, nil
}

func (c AppConfig) ConfigStringArray() []string {
	configStrArr := make([]string, 0)
	configStrArr = append(configStrArr, fmt.Sprintf("  - Concurrency: %d", c.Concurrency))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Timeout: %ds, Retries: %d", c.Timeout, c.Retries))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Provider: %s (%s)", c.Provider.Name, c.Provider.Region))

	if c.Notify.ID != "" {
		configStrArr = append(configStrArr, fmt.Sprintf("  - SNSTopic: %s", c.Notify.ID))
	}
	if c.MetricsAddr != "" {
		configStrArr = append(configStrArr, fmt.Sprintf("  - Metrics: %s", c.MetricsAddr))
	}

	configStrArr = append(configStrArr, "Workspaces:")
	for _, ws := range c.Workspaces {
		// never print tokens
		configStrArr = append(configStrArr, fmt.Sprintf("  - %s: %s", ws.Name, ws.URL))
	}

	configStrArr = append(configStrArr, "Sync Jobs:")
	for _, syncConfig := range c.Sync {
		configStrArr = append(configStrArr, fmt.Sprintf("%+v", syncConfig))
	}

	configStrArr = append(configStrArr, "Deploy Jobs:")
	for _, deployConfig := range c.Deploy {
		configStrArr = append(configStrArr, fmt.Sprintf("%+v", deployConfig))
	}

	configStrArr = append(configStrArr, "Backups:")
	for _, backupConfig := range c.Backup {
		configStrArr = append(configStrArr, fmt.Sprintf("%+v", backupConfig))
	}

	return configStrArr
}
