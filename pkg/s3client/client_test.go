// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package s3client

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StaticCredentials(t *testing.T) {
	t.Parallel()

	client, err := New(context.Background(), Config{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		AccessKeyID:     "AKID",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
	})
	require.NoError(t, err)

	opts := client.Options()
	assert.Equal(t, "us-east-1", opts.Region)
	assert.True(t, opts.UsePathStyle)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://localhost:9000", *opts.BaseEndpoint)

	creds, err := opts.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKID", creds.AccessKeyID)
	assert.Equal(t, "SECRET", creds.SecretAccessKey)
}

func TestNew_AssumeRole(t *testing.T) {
	t.Parallel()

	client, err := New(context.Background(), Config{
		Region:          "eu-west-1",
		AccessKeyID:     "AKID",
		SecretAccessKey: "SECRET",
		RoleARN:         "arn:aws:iam::123456789012:role/uploader",
	})
	require.NoError(t, err)

	opts := client.Options()
	assert.False(t, opts.UsePathStyle)
	assert.Nil(t, opts.BaseEndpoint)
	_, isCache := opts.Credentials.(*aws.CredentialsCache)
	assert.True(t, isCache, "assumed role credentials should be cached")
}

func TestNewHTTPClient_Defaults(t *testing.T) {
	t.Parallel()

	c := NewHTTPClient(0, 0)
	assert.Equal(t, 5*time.Minute, c.Timeout)

	c = NewHTTPClient(time.Second, 4)
	assert.Equal(t, time.Second, c.Timeout)
}
