package main

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Client struct {
	Client *s3.Client
}

func (s *S3Client) ListObjects(ctx context.Context, bucketName string) (map[string]ObjectInfo, error) {
	bucketFiles := make(map[string]ObjectInfo)
	listParams := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucketName),
	}
	paginator := s3.NewListObjectsV2Paginator(s.Client, listParams, func(o *s3.ListObjectsV2PaginatorOptions) {})
	for paginator.HasMorePages() {
		currentPage, pageErr := paginator.NextPage(ctx)
		if pageErr != nil {
			return bucketFiles, pageErr
		}
		for _, object := range currentPage.Contents {
			bucketFiles[aws.ToString(object.Key)] = ObjectInfo{ModTime: aws.ToTime(object.LastModified), Size: object.Size}
		}
	}

	return bucketFiles, nil
}

func (s *S3Client) UploadFile(ctx context.Context, bucketName, key string, file *os.File) error {
	uploader := manager.NewUploader(s.Client)
	_, putErr := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
		Body:   file,
	})

	return putErr
}
