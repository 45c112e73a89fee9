package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const reviewsCollection = "reviews"

type MongoReviewRepository struct {
	collection *mongo.Collection
}

// reviewDocument keeps the ObjectID out of the domain type.
type reviewDocument struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	ProductID        int64              `bson:"product_id"`
	CustomerID       int64              `bson:"customer_id"`
	OrderID          *int64             `bson:"order_id,omitempty"`
	Rating           int                `bson:"rating"`
	Title            string             `bson:"title"`
	Content          string             `bson:"content"`
	HelpfulCount     int                `bson:"helpful_count"`
	VerifiedPurchase bool               `bson:"verified_purchase"`
	CreatedAt        time.Time          `bson:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at"`
}

func NewMongoReviewRepository(db *mongo.Database) *MongoReviewRepository {
	return &MongoReviewRepository{collection: db.Collection(reviewsCollection)}
}

// CreateIndexes enforces one review per customer and product and backs the
// per-product and per-customer listings.
func (m *MongoReviewRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "product_id", Value: 1}, {Key: "customer_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create review indexes: %w", err)
	}
	return nil
}

func (m *MongoReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	now := time.Now().UTC()
	review.CreatedAt = now
	review.UpdatedAt = now

	doc := toReviewDocument(review)
	res, err := m.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("review already exists: %w", domain.ErrConflict)
		}
		return fmt.Errorf("failed to insert review: %w", err)
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		review.ID = oid.Hex()
	}
	return nil
}

func (m *MongoReviewRepository) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("review %q: %w", id, domain.ErrNotFound)
	}

	var doc reviewDocument
	err = m.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("review %q: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return doc.toDomain(), nil
}

func (m *MongoReviewRepository) ListByProduct(ctx context.Context, productID int64, limit, offset int) ([]domain.Review, error) {
	return m.list(ctx, bson.M{"product_id": productID}, limit, offset)
}

func (m *MongoReviewRepository) ListByCustomer(ctx context.Context, customerID int64, limit, offset int) ([]domain.Review, error) {
	return m.list(ctx, bson.M{"customer_id": customerID}, limit, offset)
}

// list returns matching reviews, newest first.
func (m *MongoReviewRepository) list(ctx context.Context, filter bson.M, limit, offset int) ([]domain.Review, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limitOrDefault(limit))).
		SetSkip(int64(offset))

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer cursor.Close(ctx)

	reviews := make([]domain.Review, 0)
	for cursor.Next(ctx) {
		var doc reviewDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode review: %w", err)
		}
		reviews = append(reviews, *doc.toDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("review cursor error: %w", err)
	}
	return reviews, nil
}

func (m *MongoReviewRepository) Summary(ctx context.Context, productID int64) (*domain.ReviewSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"product_id": productID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$product_id",
			"count": bson.M{"$sum": 1},
			"avg":   bson.M{"$avg": "$rating"},
		}}},
	}

	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate reviews: %w", err)
	}
	defer cursor.Close(ctx)

	summary := &domain.ReviewSummary{ProductID: productID}
	if cursor.Next(ctx) {
		var row struct {
			Count int64   `bson:"count"`
			Avg   float64 `bson:"avg"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode review summary: %w", err)
		}
		summary.ReviewCount = row.Count
		summary.AverageRating = row.Avg
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("review cursor error: %w", err)
	}
	return summary, nil
}

func (m *MongoReviewRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("review %q: %w", id, domain.ErrNotFound)
	}

	res, err := m.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("review %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

func toReviewDocument(r *domain.Review) reviewDocument {
	return reviewDocument{
		ProductID:        r.ProductID,
		CustomerID:       r.CustomerID,
		OrderID:          r.OrderID,
		Rating:           r.Rating,
		Title:            r.Title,
		Content:          r.Content,
		HelpfulCount:     r.HelpfulCount,
		VerifiedPurchase: r.VerifiedPurchase,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func (d reviewDocument) toDomain() *domain.Review {
	return &domain.Review{
		ID:               d.ID.Hex(),
		ProductID:        d.ProductID,
		CustomerID:       d.CustomerID,
		OrderID:          d.OrderID,
		Rating:           d.Rating,
		Title:            d.Title,
		Content:          d.Content,
		HelpfulCount:     d.HelpfulCount,
		VerifiedPurchase: d.VerifiedPurchase,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}
