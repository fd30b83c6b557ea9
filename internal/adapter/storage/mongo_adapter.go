package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

const stockCollection = "stock_records"

type stockDocument struct {
	ProductID string    `bson:"_id"`
	OnHand    int       `bson:"on_hand"`
	Reserved  int       `bson:"reserved"`
	Version   int64     `bson:"version"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoAdapter keeps one document per product, keyed by product ID.
type MongoAdapter struct {
	collection *mongo.Collection
}

func NewMongoAdapter(db *mongo.Database) *MongoAdapter {
	return &MongoAdapter{collection: db.Collection(stockCollection)}
}

func (m *MongoAdapter) CreateStock(ctx context.Context, record domain.StockRecord) error {
	_, err := m.collection.InsertOne(ctx, toStockDocument(record))
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert stock document: %w", err)
	}
	return nil
}

func (m *MongoAdapter) GetStock(ctx context.Context, productID string) (*domain.StockRecord, error) {
	var doc stockDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": productID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find stock document: %w", err)
	}

	rec := doc.toRecord()
	return &rec, nil
}

func (m *MongoAdapter) UpdateStock(ctx context.Context, record domain.StockRecord, expectedVersion int64) error {
	filter := bson.M{"_id": record.ProductID, "version": expectedVersion}
	update := bson.M{"$set": bson.M{
		"on_hand":    record.OnHand,
		"reserved":   record.Reserved,
		"version":    record.Version,
		"updated_at": record.UpdatedAt,
	}}

	res, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update stock document: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrOptimisticLock
	}
	return nil
}

func toStockDocument(r domain.StockRecord) stockDocument {
	return stockDocument{
		ProductID: r.ProductID,
		OnHand:    r.OnHand,
		Reserved:  r.Reserved,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (d stockDocument) toRecord() domain.StockRecord {
	return domain.StockRecord{
		ProductID: d.ProductID,
		OnHand:    d.OnHand,
		Reserved:  d.Reserved,
		Version:   d.Version,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}
