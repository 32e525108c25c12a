package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Config holds the settings for an S3-compatible object store backend.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"use_path_style"`
}

// S3 is a Storage backed by an S3-compatible bucket. Directories are
// emulated with zero-byte "<dir>/" marker keys plus key prefixes.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 creates an S3 storage for the configured bucket.
func NewS3(cfg *S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.PathStyle {
		opts = append(opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return &S3{
		client: s3.NewFromConfig(awsCfg, opts...),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *S3) key(p string) string {
	p = strings.TrimPrefix(cleanPath(p), "/")
	if s.prefix == "" {
		return p
	}
	if p == "" {
		return s.prefix
	}
	return s.prefix + "/" + p
}

// isNotFound classifies AWS errors that mean "no such key".
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}

func (s *S3) IsDir(p string) bool {
	key := s.key(p)
	if key == "" || cleanPath(p) == "/" {
		return true
	}
	out, err := s.client.ListObjectsV2(context.Background(), &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(key + "/"),
		MaxKeys: aws.Int32(1),
	})
	return err == nil && len(out.Contents) > 0
}

func (s *S3) FileExists(p string) bool {
	_, err := s.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err == nil {
		return true
	}
	return s.IsDir(p)
}

func (s *S3) ReadFile(p string) ([]byte, error) {
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("file %s does not exist", p)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", p, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", p, err)
	}
	return data, nil
}

func (s *S3) WriteFile(p string, data []byte) error {
	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", p, err)
	}
	return nil
}

func (s *S3) Copy(src, dst string) error {
	_, err := s.client.CopyObject(context.Background(), &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.key(dst)),
		CopySource: aws.String(s.bucket + "/" + s.key(src)),
	})
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}

func (s *S3) Rename(src, dst string) error {
	if err := s.Copy(src, dst); err != nil {
		return err
	}
	return s.Unlink(src)
}

func (s *S3) Unlink(p string) error {
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", p, err)
	}
	return nil
}

func (s *S3) ReadDir(p string) ([]FileInfo, error) {
	key := s.key(p)
	prefix := ""
	if key != "" {
		prefix = key + "/"
	}
	var infos []FileInfo
	var token *string
	for {
		out, err := s.client.ListObjectsV2(context.Background(), &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", p, err)
		}
		for _, cp := range out.CommonPrefixes {
			name := path.Base(strings.TrimSuffix(aws.ToString(cp.Prefix), "/"))
			infos = append(infos, FileInfo{
				Name:  name,
				Path:  cleanPath(p + "/" + name),
				IsDir: true,
			})
		}
		for _, obj := range out.Contents {
			k := aws.ToString(obj.Key)
			if k == prefix || strings.HasSuffix(k, "/") {
				continue // directory marker
			}
			name := path.Base(k)
			fi := FileInfo{
				Name: name,
				Path: cleanPath(p + "/" + name),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				fi.MTime = *obj.LastModified
			}
			infos = append(infos, fi)
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	return infos, nil
}

func (s *S3) Mkdir(p string) error {
	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p) + "/"),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", p, err)
	}
	return nil
}
