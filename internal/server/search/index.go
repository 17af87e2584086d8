// Package search mirrors account records into a search index. The index
// is a bucket of JSON objects in S3-compatible storage, one object per
// record under <index>/<objectID>.json, picked up by the search crawler.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectIDField is added to every mirrored object.
const ObjectIDField = "objectID"

// Index receives mirrored records.
type Index interface {
	Upsert(ctx context.Context, indexName, objectID string, fields map[string]any) error
	Delete(ctx context.Context, indexName, objectID string) error
}

// ObjectAPI is the subset of the S3 client used by S3Index.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Index struct {
	client ObjectAPI
	bucket string
}

func NewS3Index(client ObjectAPI, bucket string) *S3Index {
	return &S3Index{client: client, bucket: bucket}
}

func objectKey(indexName, objectID string) string {
	return indexName + "/" + objectID + ".json"
}

func (x *S3Index) Upsert(ctx context.Context, indexName, objectID string, fields map[string]any) error {
	doc := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		doc[k] = v
	}
	doc[ObjectIDField] = objectID

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode search object: %w", err)
	}

	_, err = x.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(x.bucket),
		Key:         aws.String(objectKey(indexName, objectID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", objectKey(indexName, objectID), err)
	}
	return nil
}

func (x *S3Index) Delete(ctx context.Context, indexName, objectID string) error {
	_, err := x.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(x.bucket),
		Key:    aws.String(objectKey(indexName, objectID)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", objectKey(indexName, objectID), err)
	}
	return nil
}

// S3Config holds connection settings for the object store.
type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
}

// seams for tests
var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// NewS3Client builds a client with static credentials. A non-empty
// BaseEndpoint (MinIO and friends) switches to path-style addressing.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKey,
			c.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}
