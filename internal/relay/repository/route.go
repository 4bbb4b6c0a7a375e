package repository

import (
	"context"
	"fmt"
	"time"

	"tg_relay/internal/relay/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRouteRepository 路由配置数据访问层（MongoDB 实现）
type MongoRouteRepository struct {
	collection *mongo.Collection
}

// NewMongoRouteRepository 创建路由 Repository
func NewMongoRouteRepository(db *mongo.Database) RouteRepository {
	return &MongoRouteRepository{
		collection: db.Collection("routes"),
	}
}

// Upsert 创建或覆盖路由
// 同一来源重复添加时覆盖目的地
func (r *MongoRouteRepository) Upsert(ctx context.Context, route *models.Route) error {
	now := time.Now()
	route.UpdatedAt = now
	if route.CreatedAt.IsZero() {
		route.CreatedAt = now
	}

	filter := bson.M{"source": route.Source}
	update := bson.M{
		"$set": bson.M{
			"destination": route.Destination,
			"updated_at":  route.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"created_at": route.CreatedAt,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert route %s: %w", route.Source, err)
	}

	return nil
}

// Remove 删除路由，返回是否存在
func (r *MongoRouteRepository) Remove(ctx context.Context, source string) (bool, error) {
	result, err := r.collection.DeleteOne(ctx, bson.M{"source": source})
	if err != nil {
		return false, fmt.Errorf("failed to remove route %s: %w", source, err)
	}
	return result.DeletedCount > 0, nil
}

// List 列出所有路由，按创建时间排序
func (r *MongoRouteRepository) List(ctx context.Context) ([]*models.Route, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	defer cursor.Close(ctx)

	var routes []*models.Route
	if err := cursor.All(ctx, &routes); err != nil {
		return nil, fmt.Errorf("failed to decode routes: %w", err)
	}

	return routes, nil
}

// EnsureIndexes 确保索引存在
func (r *MongoRouteRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "source", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create route indexes: %w", err)
	}

	return nil
}

// MongoFilterRepository 过滤配置数据访问层（MongoDB 实现）
// 整份过滤配置作为单个文档存储
type MongoFilterRepository struct {
	collection *mongo.Collection
}

// NewMongoFilterRepository 创建过滤配置 Repository
func NewMongoFilterRepository(db *mongo.Database) FilterRepository {
	return &MongoFilterRepository{
		collection: db.Collection("filters"),
	}
}

const filterDocID = "relay_filters"

// Get 读取过滤配置，未初始化时返回默认值
func (r *MongoFilterRepository) Get(ctx context.Context) (models.FilterConfig, error) {
	var doc struct {
		Filters models.FilterConfig `bson:"filters"`
	}

	err := r.collection.FindOne(ctx, bson.M{"_id": filterDocID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return models.DefaultFilterConfig(), nil
		}
		return models.FilterConfig{}, fmt.Errorf("failed to get filters: %w", err)
	}

	return doc.Filters, nil
}

// Set 写入完整过滤配置
func (r *MongoFilterRepository) Set(ctx context.Context, cfg models.FilterConfig) error {
	update := bson.M{
		"$set": bson.M{
			"filters":    cfg,
			"updated_at": time.Now(),
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": filterDocID}, update, opts)
	if err != nil {
		return fmt.Errorf("failed to set filters: %w", err)
	}

	return nil
}
