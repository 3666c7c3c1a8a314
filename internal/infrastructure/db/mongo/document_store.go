package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eduadmin/student-lifecycle/internal/core/domain"
	"github.com/eduadmin/student-lifecycle/internal/core/ports"
)

// DocumentStore is a schemaless document gateway over MongoDB collections.
// Documents are addressed by their string _id.
//
// AtomicBatch runs inside a multi-document transaction, which requires the
// server to be a replica set member or a mongos.
type DocumentStore struct {
	db *mongo.Database
}

func NewDocumentStore(db *mongo.Database) *DocumentStore {
	return &DocumentStore{db: db}
}

// EnsureIndexes creates the indexes used by the equality queries on profiles
// and enrollments.
func (s *DocumentStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.db.Collection(domain.CollectionProfiles).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: domain.FieldEmail, Value: 1}},
	}); err != nil {
		return fmt.Errorf("create profile indexes: %w", err)
	}

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: domain.FieldStudentID, Value: 1}}},
		{Keys: bson.D{{Key: domain.FieldStudentEmail, Value: 1}}},
	}
	if _, err := s.db.Collection(domain.CollectionEnrollments).Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create enrollment indexes: %w", err)
	}
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, domain.Infrastructure("get document", err)
	}
	doc := toDocument(raw)
	return &doc, nil
}

func (s *DocumentStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	_, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, withoutID(fields), options.Replace().SetUpsert(true))
	if err != nil {
		return domain.Infrastructure("set document", err)
	}
	return nil
}

func (s *DocumentStore) Create(ctx context.Context, collection, id string, fields map[string]any) error {
	if _, err := s.db.Collection(collection).InsertOne(ctx, insertDocument(id, fields)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDocumentExists
		}
		return domain.Infrastructure("create document", err)
	}
	return nil
}

func (s *DocumentStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": withoutID(fields)})
	if err != nil {
		return domain.Infrastructure("update document", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return domain.Infrastructure("delete document", err)
	}
	return nil
}

func (s *DocumentStore) QueryEquals(ctx context.Context, collection, field string, value any, limit int) ([]domain.Document, error) {
	return s.find(ctx, collection, bson.M{field: value}, limit)
}

func (s *DocumentStore) QueryEqualsNot(ctx context.Context, collection, field string, value any, notField string, notValue any, limit int) ([]domain.Document, error) {
	return s.find(ctx, collection, equalsNotFilter(field, value, notField, notValue), limit)
}

func (s *DocumentStore) find(ctx context.Context, collection string, filter bson.M, limit int) ([]domain.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, domain.Infrastructure("query documents", err)
	}
	defer cur.Close(ctx)

	var raws []bson.M
	if err := cur.All(ctx, &raws); err != nil {
		return nil, domain.Infrastructure("decode documents", err)
	}
	docs := make([]domain.Document, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, toDocument(raw))
	}
	return docs, nil
}

// AtomicBatch applies ops in one transaction. An update of a missing document
// aborts the whole batch with domain.ErrDocumentNotFound.
func (s *DocumentStore) AtomicBatch(ctx context.Context, ops []ports.BatchOp) error {
	if len(ops) == 0 {
		return nil
	}

	sess, err := s.db.Client().StartSession()
	if err != nil {
		return domain.Infrastructure("start session", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, op := range ops {
			if err := s.apply(sc, op); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrDocumentNotFound) || errors.Is(err, domain.ErrValidation) {
		return err
	}
	return domain.Infrastructure("atomic batch", err)
}

func (s *DocumentStore) apply(ctx mongo.SessionContext, op ports.BatchOp) error {
	coll := s.db.Collection(op.Collection)
	filter := bson.M{"_id": op.ID}
	switch op.Kind {
	case ports.BatchSet:
		_, err := coll.ReplaceOne(ctx, filter, withoutID(op.Fields), options.Replace().SetUpsert(true))
		return err
	case ports.BatchUpdate:
		res, err := coll.UpdateOne(ctx, filter, bson.M{"$set": withoutID(op.Fields)})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("%s/%s: %w", op.Collection, op.ID, domain.ErrDocumentNotFound)
		}
		return nil
	case ports.BatchDelete:
		_, err := coll.DeleteOne(ctx, filter)
		return err
	default:
		return domain.NewValidationError("op", fmt.Sprintf("unknown batch op kind %d", op.Kind))
	}
}

// equalsNotFilter matches field == value and notField != notValue. Documents
// missing notField match as well.
func equalsNotFilter(field string, value any, notField string, notValue any) bson.M {
	return bson.M{
		field:    value,
		notField: bson.M{"$ne": notValue},
	}
}

func insertDocument(id string, fields map[string]any) bson.M {
	doc := withoutID(fields)
	doc["_id"] = id
	return doc
}

func withoutID(fields map[string]any) bson.M {
	out := make(bson.M, len(fields))
	for k, v := range fields {
		if k == "_id" {
			continue
		}
		out[k] = v
	}
	return out
}

// toDocument converts a decoded BSON document, turning BSON dates back into
// time.Time so that callers never see driver types.
func toDocument(raw bson.M) domain.Document {
	doc := domain.Document{Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		if k == "_id" {
			doc.ID = fmt.Sprint(v)
			continue
		}
		if dt, ok := v.(primitive.DateTime); ok {
			doc.Fields[k] = dt.Time().UTC()
			continue
		}
		doc.Fields[k] = v
	}
	return doc
}
