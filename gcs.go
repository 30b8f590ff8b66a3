package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

type GCSClient struct {
	Client *storage.Client
}

func (s *GCSClient) ListObjects(ctx context.Context, bucketName string) (map[string]ObjectInfo, error) {
	objectMap := make(map[string]ObjectInfo)
	objIter := s.Client.Bucket(bucketName).Objects(ctx, nil)
	for {
		attrs, err := objIter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return objectMap, fmt.Errorf("Bucket(%q).Objects: %v", bucketName, err)
		}
		objectMap[attrs.Name] = ObjectInfo{ModTime: attrs.Updated, Size: attrs.Size}
	}

	return objectMap, nil
}

func (s *GCSClient) UploadFile(ctx context.Context, bucketName, key string, file *os.File) error {
	objWriter := s.Client.Bucket(bucketName).Object(key).NewWriter(ctx)
	if _, uploadErr := io.Copy(objWriter, file); uploadErr != nil {
		objWriter.Close()
		return uploadErr
	}

	return objWriter.Close()
}
