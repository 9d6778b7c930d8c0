package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/redbank/donation-system/internal/core/domain"
	"github.com/redbank/donation-system/internal/core/ports"
)

const collectionRequests = "blood_requests"

// RequestRepository implements ports.RequestRepository using MongoDB.
type RequestRepository struct {
	col *mongo.Collection
}

func NewRequestRepository(db *mongo.Database) *RequestRepository {
	return &RequestRepository{col: db.Collection(collectionRequests)}
}

type mongoRequest struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	RecipientID string             `bson:"recipient_id"`
	BloodGroup  string             `bson:"blood_group"`
	City        string             `bson:"city"`
	Status      string             `bson:"status"`
	AcceptedBy  string             `bson:"accepted_by,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

func (m *mongoRequest) toDomain() *domain.BloodRequest {
	return &domain.BloodRequest{
		ID:          m.ID.Hex(),
		RecipientID: m.RecipientID,
		BloodGroup:  m.BloodGroup,
		City:        m.City,
		Status:      domain.RequestStatus(m.Status),
		AcceptedBy:  m.AcceptedBy,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func requestID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, domain.ErrRequestNotFound
	}
	return oid, nil
}

func (r *RequestRepository) Create(ctx context.Context, req *domain.BloodRequest) (*domain.BloodRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoRequest{
		RecipientID: req.RecipientID,
		BloodGroup:  req.BloodGroup,
		City:        req.City,
		Status:      string(req.Status),
		AcceptedBy:  req.AcceptedBy,
		CreatedAt:   req.CreatedAt,
		UpdatedAt:   req.UpdatedAt,
	}
	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("insert request: unexpected id type %T", res.InsertedID)
	}
	doc.ID = oid
	return doc.toDomain(), nil
}

func (r *RequestRepository) FindByID(ctx context.Context, id string) (*domain.BloodRequest, error) {
	oid, err := requestID(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var m mongoRequest
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fmt.Errorf("find request: %w", err)
	}
	return m.toDomain(), nil
}

func (r *RequestRepository) List(ctx context.Context, f ports.RequestFilter) ([]*domain.BloodRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{}
	if f.RecipientID != "" {
		filter["recipient_id"] = f.RecipientID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.BloodGroup != "" {
		filter["blood_group"] = f.BloodGroup
	}
	if f.City != "" {
		filter["city"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(f.City) + "$", Options: "i"}
	}

	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find requests: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoRequest
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode requests: %w", err)
	}

	out := make([]*domain.BloodRequest, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

// Transition is a compare-and-set on the status field.
func (r *RequestRepository) Transition(ctx context.Context, id string, from, to domain.RequestStatus, acceptedBy string) (*domain.BloodRequest, error) {
	oid, err := requestID(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{"status": string(to), "updated_at": time.Now().UTC()}
	update := bson.M{"$set": set}
	switch to {
	case domain.RequestAccepted:
		set["accepted_by"] = acceptedBy
	case domain.RequestPending:
		update["$unset"] = bson.M{"accepted_by": ""}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m mongoRequest
	err = r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid, "status": string(from)}, update, opts).Decode(&m)
	if err == nil {
		return m.toDomain(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("transition request: %w", err)
	}

	n, err := r.col.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return nil, fmt.Errorf("check request: %w", err)
	}
	if n == 0 {
		return nil, domain.ErrRequestNotFound
	}
	return nil, domain.ErrVersionMismatch
}

// EnsureIndexes creates the indexes the request queries rely on.
func (r *RequestRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "blood_group", Value: 1}, {Key: "city", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
