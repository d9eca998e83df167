package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageKey(t *testing.T) {
	key := NewImageKey("u1", time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC))
	assert.True(t, strings.HasPrefix(key, "images/u1/2026/03/07/"), key)
	assert.Len(t, strings.TrimPrefix(key, "images/u1/2026/03/07/"), 36)
}

func TestMediaService_UploadAndDownloadURL(t *testing.T) {
	s := NewMediaService(testConfig())
	ctx := context.Background()

	key, url, err := s.UploadURL(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "images/u1/"))
	assert.Contains(t, url, "http://127.0.0.1:9000/chat-images/"+key)
	assert.Contains(t, url, "X-Amz-Signature=")

	get, err := s.DownloadURL(ctx, key)
	require.NoError(t, err)
	assert.Contains(t, get, "/chat-images/"+key)
}

func TestMediaService_DownloadURL_RejectsForeignKeys(t *testing.T) {
	s := NewMediaService(testConfig())

	for _, key := range []string{"", "users/secret", "images/../etc/passwd"} {
		_, err := s.DownloadURL(context.Background(), key)
		assert.ErrorIs(t, err, common.ErrorValidation, key)
	}
}

func TestMediaService_ConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })
	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}

	s := NewMediaService(testConfig())

	_, _, err := s.UploadURL(context.Background(), "u1")
	assert.ErrorContains(t, err, "no config")

	_, err = s.DownloadURL(context.Background(), "images/u1/x")
	assert.ErrorContains(t, err, "no config")
}

func TestMediaService_PresignErrors(t *testing.T) {
	origPut, origGet := presignPutObject, presignGetObject
	t.Cleanup(func() {
		presignPutObject = origPut
		presignGetObject = origGet
	})
	presignPutObject = func(*s3.PresignClient, context.Context, *s3.PutObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("put denied")
	}
	presignGetObject = func(*s3.PresignClient, context.Context, *s3.GetObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("get denied")
	}

	s := NewMediaService(testConfig())

	_, _, err := s.UploadURL(context.Background(), "u1")
	assert.ErrorContains(t, err, "put denied")

	_, err = s.DownloadURL(context.Background(), "images/u1/x")
	assert.ErrorContains(t, err, "get denied")
}
