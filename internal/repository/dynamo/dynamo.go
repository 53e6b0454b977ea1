// Package dynamo implements repository.DocumentStore on Amazon DynamoDB.
//
// Each collection maps to its own table, named <prefix><collection>
// (rakshak_sos_events, rakshak_users, ...). Every table has a single string
// partition key "id". Documents are stored as plain attribute maps, so the
// tables can be browsed in the AWS console without any decoding.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/xid"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/repository"
)

// API is the subset of *dynamodb.Client the store calls. Tests substitute
// an in-memory fake.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store is a DocumentStore backed by DynamoDB.
type Store struct {
	client      API
	tablePrefix string
	logger      *slog.Logger
}

// compile-time check that *Store implements repository.DocumentStore
var _ repository.DocumentStore = (*Store)(nil)

// Options configures Open.
type Options struct {
	Region      string
	TablePrefix string
	// Endpoint overrides the service URL, for DynamoDB Local.
	Endpoint string
}

// Open builds a client from the default AWS credential chain.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("dynamo: loading aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	return New(client, opts.TablePrefix, logger), nil
}

// New wraps an existing client.
func New(client API, tablePrefix string, logger *slog.Logger) *Store {
	return &Store{
		client:      client,
		tablePrefix: tablePrefix,
		logger:      logger,
	}
}

func (s *Store) table(collection string) *string {
	return aws.String(s.tablePrefix + collection)
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

// GetDocument reads one item. Strongly consistent, so a merge followed by a
// read sees its own write.
func (s *Store) GetDocument(ctx context.Context, collection, id string) (repository.Document, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      s.table(collection),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: getting %s/%s: %w", collection, id, err)
	}
	if out.Item == nil {
		return nil, apperror.NotFound(collection, id)
	}

	var doc repository.Document
	if err := attributevalue.UnmarshalMap(out.Item, &doc); err != nil {
		return nil, fmt.Errorf("dynamo: decoding %s/%s: %w", collection, id, err)
	}
	doc["id"] = id
	return doc, nil
}

// ListDocuments scans the whole table, following LastEvaluatedKey, and then
// applies the query in memory. The collections are small (resources, one
// user's events) so a Scan is cheaper than maintaining secondary indexes.
func (s *Store) ListDocuments(ctx context.Context, collection string, q repository.Query) ([]repository.Document, error) {
	var docs []repository.Document
	var lastEvaluatedKey map[string]types.AttributeValue

	for {
		in := &dynamodb.ScanInput{
			TableName: s.table(collection),
		}
		if lastEvaluatedKey != nil {
			in.ExclusiveStartKey = lastEvaluatedKey
		}

		out, err := s.client.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("dynamo: scanning %s: %w", collection, err)
		}

		for _, item := range out.Items {
			var doc repository.Document
			if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
				s.logger.Warn("dynamo: skipping undecodable item",
					slog.String("collection", collection),
					slog.String("error", err.Error()),
				)
				continue
			}
			docs = append(docs, doc)
		}

		lastEvaluatedKey = out.LastEvaluatedKey
		if len(lastEvaluatedKey) == 0 {
			break
		}
	}

	return repository.ApplyQuery(docs, q), nil
}

// AddDocument writes data under a new xid. The condition guards against the
// (practically impossible) id collision overwriting another document.
func (s *Store) AddDocument(ctx context.Context, collection string, data repository.Document) (string, error) {
	id := xid.New().String()

	doc, err := repository.MergeFields(nil, data)
	if err != nil {
		return "", fmt.Errorf("dynamo: adding to %s: %w", collection, err)
	}

	if err := s.put(ctx, collection, id, doc, aws.String("attribute_not_exists(id)")); err != nil {
		return "", err
	}
	return id, nil
}

// MergeDocument is read-modify-write. DynamoDB's UpdateItem cannot deep-merge
// nested maps, so the merge happens here and the whole item is written back.
// Concurrent merges into the same item can race; the callers (last-login and
// last-SOS stamps) tolerate last-writer-wins.
func (s *Store) MergeDocument(ctx context.Context, collection, id string, data repository.Document) error {
	existing, err := s.GetDocument(ctx, collection, id)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return err
	}

	merged, err := repository.MergeFields(existing, data)
	if err != nil {
		return fmt.Errorf("dynamo: merging %s/%s: %w", collection, id, err)
	}
	return s.put(ctx, collection, id, merged, nil)
}

func (s *Store) put(ctx context.Context, collection, id string, doc repository.Document, condition *string) error {
	doc["id"] = id

	item, err := attributevalue.MarshalMap(map[string]any(doc))
	if err != nil {
		return fmt.Errorf("dynamo: encoding %s/%s: %w", collection, id, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           s.table(collection),
		Item:                item,
		ConditionExpression: condition,
	})
	if err != nil {
		return fmt.Errorf("dynamo: writing %s/%s: %w", collection, id, err)
	}

	s.logger.Debug("dynamo: document written",
		slog.String("collection", collection),
		slog.String("id", id),
	)
	return nil
}
