// Package database wraps the DynamoDB client used by the widget session store.
package database

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"chat-app-client/internal/env"
)

// API is the subset of *dynamodb.Client used here.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type DynamoDBClient struct {
	svc API
}

// Settings select the region, static credentials, and endpoint override.
// Empty credentials fall back to the default AWS provider chain.
type Settings struct {
	Region   string
	ID       string
	Secret   string
	Token    string
	Endpoint string
}

// SettingsFromEnv reads AWS_REGION, AWS_ID, AWS_SECRET, AWS_TOKEN and DYNAMODB_ENDPOINT.
func SettingsFromEnv() Settings {
	return Settings{
		Region:   env.Get(env.AWSRegion),
		ID:       env.Get(env.AWSID),
		Secret:   env.Get(env.AWSSecret),
		Token:    env.Get(env.AWSToken),
		Endpoint: env.Get(env.DynamoDBEndpoint),
	}
}

func NewDynamoDBClient(ctx context.Context, s Settings) (*DynamoDBClient, error) {
	loadOpts := []func(*config.LoadOptions) error{}
	if s.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(s.Region))
	}
	if s.ID != "" && s.Secret != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(s.ID, s.Secret, s.Token)),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	clientOpts := []func(*dynamodb.Options){}
	if s.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(s.Endpoint)
		})
	}

	return &DynamoDBClient{svc: dynamodb.NewFromConfig(cfg, clientOpts...)}, nil
}

// NewWithAPI wraps an existing client, typically a fake in tests.
func NewWithAPI(svc API) *DynamoDBClient {
	return &DynamoDBClient{svc: svc}
}
