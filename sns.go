package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/dustin/go-humanize"
)

// SNS rejects messages above 256KB
const maxSNSMessageSize = 256 * 1024

func NewSNSNotifier(appConfig AppConfig) (Notifier, error) {
	var notifier Notifier

	cfg, cfgErr := config.LoadDefaultConfig(context.TODO(),
		config.WithSharedConfigProfile(appConfig.Notify.Profile),
		config.WithRegion(appConfig.Notify.Region))

	if cfgErr != nil {
		return notifier, cfgErr
	}
	snsClient := &SNSClient{sns.NewFromConfig(cfg)}
	notifier = &SNSNotifier{Client: snsClient, Topic: appConfig.Notify.ID}

	return notifier, nil
}

type SNSClientIface interface {
	PublishMessage(msg *sns.PublishInput) error
}

type SNSClient struct {
	Client *sns.Client
}

func (s *SNSClient) PublishMessage(msg *sns.PublishInput) error {
	_, publishErr := s.Client.Publish(context.TODO(), msg)
	return publishErr
}

type SNSNotifier struct {
	Client SNSClientIface
	Topic  string
}

func (s *SNSNotifier) NotifySyncResults(syncConfig SyncConfig, resultMap *ResultMap) error {
	summary := resultMap.Summary()

	// if no errors we dont need to send any notification
	if !summary.HasFailures() {
		return nil
	}

	notificationBody := fmt.Sprintf(
		"Written: %d\nSkipped: %d\nFailed: %d\n\n",
		summary.Written,
		summary.Skipped,
		summary.Failed,
	)
	for _, failure := range summary.Failures {
		entry := fmt.Sprintf("Path: %s\nError: %s\n\n", failure.Path, failure.Err)
		if len(notificationBody)+len(entry) > maxSNSMessageSize {
			notificationBody += "(truncated)\n"
			break
		}
		notificationBody += entry
	}

	snsPublishReq := &sns.PublishInput{
		Message:  aws.String(notificationBody),
		TopicArn: aws.String(s.Topic),
		Subject: aws.String(fmt.Sprintf(
			"Sync Errors: %s:%s -> %s",
			syncConfig.Source,
			syncConfig.Root,
			syncConfig.Destination,
		)),
	}

	return s.Client.PublishMessage(snsPublishReq)
}

func (s *SNSNotifier) NotifyBackupResults(backupConfig BackupConfig, key string, size int64, backupErr error) error {
	var statusString string
	if backupErr == nil {
		statusString = "succeeded"
	} else {
		statusString = "failed"
	}

	subject := fmt.Sprintf("Backup %s: %s:%s", statusString, backupConfig.Workspace, backupConfig.Root)
	notificationBody := fmt.Sprintf("Backup Key: %s\n", key)
	notificationBody += fmt.Sprintf("Backup Size: %s\n", humanize.Bytes(uint64(size)))
	notificationBody += fmt.Sprintf("Error: %v\n", backupErr)

	snsPublishReq := &sns.PublishInput{
		Message:  aws.String(notificationBody),
		TopicArn: aws.String(s.Topic),
		Subject:  aws.String(subject),
	}

	return s.Client.PublishMessage(snsPublishReq)
}
