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

// MongoCursorRepository 游标数据访问层（MongoDB 实现）
type MongoCursorRepository struct {
	collection *mongo.Collection
}

// NewMongoCursorRepository 创建游标 Repository
func NewMongoCursorRepository(db *mongo.Database) CursorRepository {
	return &MongoCursorRepository{
		collection: db.Collection("relay_state"),
	}
}

// Get 读取来源的游标，不存在时返回 0
func (r *MongoCursorRepository) Get(ctx context.Context, entityID string) (int64, error) {
	var cursor models.Cursor
	err := r.collection.FindOne(ctx, bson.M{"entity_id": entityID}).Decode(&cursor)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get cursor for %s: %w", entityID, err)
	}
	return cursor.LastMessageID, nil
}

// SetIfGreater 仅当新 ID 大于已存储值时写入
// 过滤条件带 $lt，已有更大值时 upsert 会因唯一索引冲突失败，视为 no-op
func (r *MongoCursorRepository) SetIfGreater(ctx context.Context, entityID string, messageID int64) error {
	filter := bson.M{
		"entity_id":       entityID,
		"last_message_id": bson.M{"$lt": messageID},
	}

	update := bson.M{
		"$set": bson.M{
			"last_message_id": messageID,
			"updated_at":      time.Now(),
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// 已存储的游标不小于 messageID，保持不变
			return nil
		}
		return fmt.Errorf("failed to advance cursor for %s: %w", entityID, err)
	}

	return nil
}

// MaxMessageID 返回所有游标中的最大消息 ID
func (r *MongoCursorRepository) MaxMessageID(ctx context.Context) (int64, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "last_message_id", Value: -1}})

	var cursor models.Cursor
	err := r.collection.FindOne(ctx, bson.M{}, opts).Decode(&cursor)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get max cursor: %w", err)
	}
	return cursor.LastMessageID, nil
}

// Count 返回已有游标的来源数量
func (r *MongoCursorRepository) Count(ctx context.Context) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count cursors: %w", err)
	}
	return count, nil
}

// EnsureIndexes 确保索引存在
func (r *MongoCursorRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "entity_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "last_message_id", Value: -1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create cursor indexes: %w", err)
	}

	return nil
}
