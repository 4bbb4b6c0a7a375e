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

// MongoArchiveRepository 消息档案数据访问层（MongoDB 实现）
type MongoArchiveRepository struct {
	collection *mongo.Collection
}

// NewMongoArchiveRepository 创建消息档案 Repository
func NewMongoArchiveRepository(db *mongo.Database) ArchiveRepository {
	return &MongoArchiveRepository{
		collection: db.Collection("archived_messages"),
	}
}

// Save 记录一条观察到的消息
// 使用 Upsert 模式，同一条消息重复送达不会产生重复记录
func (r *MongoArchiveRepository) Save(ctx context.Context, msg *models.ArchivedMessage) error {
	msg.CreatedAt = time.Now()

	filter := bson.M{
		"chat_id":    msg.ChatID,
		"message_id": msg.MessageID,
	}

	update := bson.M{
		"$set": bson.M{
			"service_action": msg.ServiceAction,
			"media":          msg.Media,
			"has_text":       msg.HasText,
			"sent_at":        msg.SentAt,
		},
		"$setOnInsert": bson.M{
			"created_at": msg.CreatedAt,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to archive message: %w", err)
	}

	return nil
}

// ListAfter 按消息 ID 升序返回某聊天中 ID 严格大于 afterID 的消息
func (r *MongoArchiveRepository) ListAfter(ctx context.Context, chatID int64, afterID int64, limit int64) ([]*models.ArchivedMessage, error) {
	filter := bson.M{
		"chat_id":    chatID,
		"message_id": bson.M{"$gt": afterID},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "message_id", Value: 1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*models.ArchivedMessage
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode archived messages: %w", err)
	}

	return messages, nil
}

// EnsureIndexes 确保索引存在
func (r *MongoArchiveRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "chat_id", Value: 1},
				{Key: "message_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "sent_at", Value: -1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create archive indexes: %w", err)
	}

	return nil
}
