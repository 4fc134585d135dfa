package store

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewSink builds the sink named by opt.Type. db is only used by the sqlite sink.
func NewSink(ctx context.Context, opt Options, db *DB) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(opt.Type)) {
	case "", TypeJSON:
		return NewJSONSink(opt.OutputDir)

	case TypeSQLite:
		if db == nil {
			return nil, fmt.Errorf("sqlite sink: database not open")
		}
		return NewSQLiteSink(db), nil

	case TypeDynamoDB:
		if opt.DynamoTable == "" {
			return nil, fmt.Errorf("dynamodb sink: table is required")
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, regionOpt(opt.DynamoRegion)...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return NewDynamoSink(dynamodb.NewFromConfig(cfg), opt.DynamoTable), nil

	case TypeS3:
		if opt.S3Bucket == "" {
			return nil, fmt.Errorf("s3 sink: bucket is required")
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, regionOpt(opt.S3Region)...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return NewS3Sink(s3.NewFromConfig(cfg), opt.S3Bucket, opt.S3Prefix), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", opt.Type)
	}
}

func regionOpt(region string) []func(*awsconfig.LoadOptions) error {
	if region == "" {
		return nil
	}
	return []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
}
