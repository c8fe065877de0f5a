package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoFirstBookmarkStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// NewDynamoClient builds a DynamoDB client from the default credential chain.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	awsCfg, err := loadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// DynamoFirstBookmarkStore keeps first-bookmark records in a DynamoDB table
// whose partition key is the string attribute "username".
type DynamoFirstBookmarkStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoFirstBookmarkStore creates a store on table.
func NewDynamoFirstBookmarkStore(client DynamoAPI, table string) *DynamoFirstBookmarkStore {
	return &DynamoFirstBookmarkStore{client: client, table: table}
}

// Get implements FirstBookmarkStore.
func (s *DynamoFirstBookmarkStore) Get(ctx context.Context, username string) (FirstBookmark, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"username": &types.AttributeValueMemberS{Value: username},
		},
	})
	if err != nil {
		return FirstBookmark{}, fmt.Errorf("dynamodb get %s: %w", username, err)
	}
	if len(out.Item) == 0 {
		return FirstBookmark{}, ErrNotFound
	}

	var fb FirstBookmark
	if err := attributevalue.UnmarshalMap(out.Item, &fb); err != nil {
		return FirstBookmark{}, fmt.Errorf("unmarshal first bookmark of %s: %w", username, err)
	}
	return fb, nil
}

// Record implements FirstBookmarkStore. The minimum is kept by a conditional
// write, so concurrent passes cannot raise the stored value.
func (s *DynamoFirstBookmarkStore) Record(ctx context.Context, fb FirstBookmark) error {
	item, err := attributevalue.MarshalMap(fb)
	if err != nil {
		return fmt.Errorf("marshal first bookmark: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(username) OR created > :created"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":created": &types.AttributeValueMemberN{Value: strconv.FormatInt(fb.Created, 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// An earlier or equal value is already stored.
			return nil
		}
		return fmt.Errorf("dynamodb put %s: %w", fb.Username, err)
	}
	return nil
}
