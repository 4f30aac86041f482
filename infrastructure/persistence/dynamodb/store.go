// Package dynamodb is a single-table DynamoDB repository. Integer ids come
// from atomic counter items; orderId uniqueness is enforced by writing a
// marker item in the same transaction as the order.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"api-backend/application/ports"
	"api-backend/domain"
)

const (
	entityProduct = "PRODUCT"
	entityOrder   = "ORDER"

	skMetadata = "METADATA"
	skCounter  = "COUNTER"
	skUnique   = "UNIQUE"

	conditionNotExists = "attribute_not_exists(PK)"
)

// DBClient is the subset of the DynamoDB API the store uses.
type DBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// productItem represents the DynamoDB item structure for a product
type productItem struct {
	PK          string    `dynamodbav:"PK"`
	SK          string    `dynamodbav:"SK"`
	EntityType  string    `dynamodbav:"EntityType"`
	ID          int64     `dynamodbav:"ID"`
	Name        string    `dynamodbav:"Name"`
	Description string    `dynamodbav:"Description"`
	Price       float64   `dynamodbav:"Price"`
	Stock       int       `dynamodbav:"Stock"`
	CreatedAt   time.Time `dynamodbav:"CreatedAt"`
	UpdatedAt   time.Time `dynamodbav:"UpdatedAt"`
}

// orderItem represents the DynamoDB item structure for an order
type orderItem struct {
	PK         string    `dynamodbav:"PK"`
	SK         string    `dynamodbav:"SK"`
	EntityType string    `dynamodbav:"EntityType"`
	ID         int64     `dynamodbav:"ID"`
	OrderID    string    `dynamodbav:"OrderID"`
	ProductID  int64     `dynamodbav:"ProductID"`
	Quantity   int       `dynamodbav:"Quantity"`
	Status     string    `dynamodbav:"Status"`
	CreatedAt  time.Time `dynamodbav:"CreatedAt"`
	UpdatedAt  time.Time `dynamodbav:"UpdatedAt"`
}

// Store implements ports.Repository on a single DynamoDB table.
type Store struct {
	client    DBClient
	tableName string
	logger    *zap.Logger
	now       func() time.Time
}

var _ ports.Repository = (*Store)(nil)

// NewClient builds a DynamoDB client from the default AWS credential chain.
// A non-empty endpoint points the client at DynamoDB Local or similar.
func NewClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// NewStore creates a store on tableName. The table needs a string PK
// partition key and a string SK sort key.
func NewStore(client DBClient, tableName string, logger *zap.Logger) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		logger:    logger.Named("dynamodb"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func productKey(id int64) string { return "PRODUCT#" + strconv.FormatInt(id, 10) }
func orderKey(id int64) string   { return "ORDER#" + strconv.FormatInt(id, 10) }
func orderIDKey(orderID string) string {
	return "ORDERID#" + orderID
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// nextID atomically increments the counter for entity and returns the new
// value.
func (s *Store) nextID(ctx context.Context, entity string) (int64, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              key("COUNTER#"+entity, skCounter),
		UpdateExpression: aws.String("ADD #value :one"),
		ExpressionAttributeNames: map[string]string{
			"#value": "Value",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", entity, err)
	}

	var id int64
	if err := attributevalue.Unmarshal(out.Attributes["Value"], &id); err != nil {
		return 0, fmt.Errorf("failed to decode %s counter: %w", entity, err)
	}
	return id, nil
}

func (s *Store) CreateProduct(ctx context.Context, product *domain.Product) error {
	id, err := s.nextID(ctx, entityProduct)
	if err != nil {
		return err
	}

	now := s.now()
	item := productItem{
		PK:          productKey(id),
		SK:          skMetadata,
		EntityType:  entityProduct,
		ID:          id,
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Stock:       product.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String(conditionNotExists),
	})
	if err != nil {
		return fmt.Errorf("failed to create product: %w", translate(err))
	}

	product.ID = id
	product.CreatedAt = now
	product.UpdatedAt = now
	return nil
}

func (s *Store) FindProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       key(productKey(id), skMetadata),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var item productItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product: %w", err)
	}
	return item.toDomain(), nil
}

func (s *Store) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	items, err := s.scanEntity(ctx, entityProduct)
	if err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}

	var rows []productItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal products: %w", err)
	}

	products := make([]*domain.Product, 0, len(rows))
	for i := range rows {
		products = append(products, rows[i].toDomain())
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *Store) CreateOrder(ctx context.Context, order *domain.Order) error {
	id, err := s.nextID(ctx, entityOrder)
	if err != nil {
		return err
	}

	now := s.now()
	item := orderItem{
		PK:         orderKey(id),
		SK:         skMetadata,
		EntityType: entityOrder,
		ID:         id,
		OrderID:    order.OrderID,
		ProductID:  order.ProductID,
		Quantity:   order.Quantity,
		Status:     string(order.Status),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	marker := key(orderIDKey(order.OrderID), skUnique)
	marker["OrderDBID"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(id, 10)}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.tableName),
					Item:                marker,
					ConditionExpression: aws.String(conditionNotExists),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(s.tableName),
					Item:                av,
					ConditionExpression: aws.String(conditionNotExists),
				},
			},
		},
	})
	if err != nil {
		err = translate(err)
		if errors.Is(err, ports.ErrDuplicateKey) {
			s.logger.Debug("Order id already taken", zap.String("orderId", order.OrderID))
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	order.ID = id
	order.CreatedAt = now
	order.UpdatedAt = now
	return nil
}

func (s *Store) FindOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       key(orderKey(id), skMetadata),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var item orderItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return item.toDomain(), nil
}

func (s *Store) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	items, err := s.scanEntity(ctx, entityOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to find orders: %w", err)
	}

	var rows []orderItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal orders: %w", err)
	}

	orders := make([]*domain.Order, 0, len(rows))
	for i := range rows {
		orders = append(orders, rows[i].toDomain())
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

// scanEntity reads every item of one entity type across all scan pages.
func (s *Store) scanEntity(ctx context.Context, entity string) ([]map[string]types.AttributeValue, error) {
	expr, err := expression.NewBuilder().
		WithFilter(expression.Name("EntityType").Equal(expression.Value(entity))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build scan filter: %w", err)
	}

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// Close is a no-op; the AWS client holds no resources that need releasing.
func (s *Store) Close() error {
	return nil
}

func (i *productItem) toDomain() *domain.Product {
	return &domain.Product{
		ID:          i.ID,
		Name:        i.Name,
		Description: i.Description,
		Price:       i.Price,
		Stock:       i.Stock,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}

func (i *orderItem) toDomain() *domain.Order {
	return &domain.Order{
		ID:        i.ID,
		OrderID:   i.OrderID,
		ProductID: i.ProductID,
		Quantity:  i.Quantity,
		Status:    domain.OrderStatus(i.Status),
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

// translate maps failed conditional writes onto ports.ErrDuplicateKey and
// tags other service errors with their API error code.
func translate(err error) error {
	var conditional *types.ConditionalCheckFailedException
	if errors.As(err, &conditional) {
		return fmt.Errorf("%w: %v", ports.ErrDuplicateKey, err)
	}

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return fmt.Errorf("%w: %v", ports.ErrDuplicateKey, err)
			}
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("dynamodb %s: %w", apiErr.ErrorCode(), err)
	}
	return err
}
