package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// CommentsCollection is the collection name used by the mongo backend.
const CommentsCollection = "comments"

// MongoCommentStore persists comments in a MongoDB collection.
//
// Multi-document units of work use a session transaction when transactions
// are enabled; that requires a replica set. Without them Atomically runs fn
// directly against the collection.
type MongoCommentStore struct {
	mongoRepo
	client *mongo.Client
	tx     bool
	log    *zap.Logger
}

// NewMongoCommentStore creates a store over db.comments. The caller owns the
// client.
func NewMongoCommentStore(client *mongo.Client, database string, transactions bool, log *zap.Logger) *MongoCommentStore {
	if log == nil {
		log = zap.NewNop()
	}
	coll := client.Database(database).Collection(CommentsCollection)
	return &MongoCommentStore{
		mongoRepo: mongoRepo{coll: coll},
		client:    client,
		tx:        transactions,
		log:       log,
	}
}

// EnsureIndexes creates the indexes the listing and cascade queries rely on.
func (s *MongoCommentStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "parentId", Value: 1}, {Key: "isDeleted", Value: 1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "parentId", Value: 1}, {Key: "isDeleted", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "parentId", Value: 1}, {Key: "isDeleted", Value: 1}, {Key: "updatedAt", Value: 1}}},
	})
	return err
}

func (s *MongoCommentStore) Atomically(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	if !s.tx {
		s.log.Debug("mongo transactions disabled, running unit of work without isolation")
		return fn(ctx, s.mongoRepo)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc, s.mongoRepo)
	})
	return err
}

func (s *MongoCommentStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// mongoRepo runs every call against coll; inside a transaction the session
// travels on ctx.
type mongoRepo struct {
	coll *mongo.Collection
}

func liveByID(id string) bson.M {
	return bson.M{"_id": id, "isDeleted": false}
}

func (r mongoRepo) GetByID(ctx context.Context, id string) (Comment, error) {
	var c Comment
	err := r.coll.FindOne(ctx, liveByID(id)).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, err
	}
	return normalize(c), nil
}

func (r mongoRepo) Exists(ctx context.Context, id string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, liveByID(id), options.Count().SetLimit(1))
	return n > 0, err
}

func (r mongoRepo) Create(ctx context.Context, text string, parentID *string) (Comment, error) {
	id, err := NewID()
	if err != nil {
		return Comment{}, err
	}
	now := Now()
	c := Comment{
		ID:        id,
		Text:      text,
		ParentID:  cloneString(parentID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := r.coll.InsertOne(ctx, c); err != nil {
		return Comment{}, err
	}
	return c, nil
}

func (r mongoRepo) UpdateText(ctx context.Context, id, text string) (Comment, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$set": bson.M{"text": text, "updatedAt": Now()}}

	var c Comment
	err := r.coll.FindOneAndUpdate(ctx, liveByID(id), update, opts).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, err
	}
	return normalize(c), nil
}

func (r mongoRepo) FindChildrenIDs(ctx context.Context, parentIDs []string) ([]string, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{"parentId": bson.M{"$in": parentIDs}, "isDeleted": false}
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (r mongoRepo) BulkMarkDeleted(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "isDeleted": false},
		bson.M{"$set": bson.M{"isDeleted": true, "deletedAt": at, "updatedAt": at}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r mongoRepo) AdjustChildCount(ctx context.Context, id string, delta int) (bool, error) {
	res, err := r.coll.UpdateOne(ctx, liveByID(id), bson.M{
		"$inc": bson.M{"totalSubComments": delta},
		"$set": bson.M{"updatedAt": Now()},
	})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (r mongoRepo) List(ctx context.Context, q ListQuery) ([]Comment, error) {
	filter := filterDoc(q.Filter)
	if q.After != nil {
		filter = bson.M{"$and": bson.A{filter, keysetDoc(q.Order, *q.After)}}
	}

	dir := 1
	if q.Order.Desc {
		dir = -1
	}
	sort := bson.D{{Key: "_id", Value: dir}}
	if q.Order.Field != FieldID {
		sort = bson.D{{Key: bsonField(q.Order.Field), Value: dir}, {Key: "_id", Value: dir}}
	}
	opts := options.Find().SetSort(sort)
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := []Comment{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i] = normalize(out[i])
	}
	return out, nil
}

func (r mongoRepo) Count(ctx context.Context, f Filter) (int64, error) {
	return r.coll.CountDocuments(ctx, filterDoc(f))
}

func (r mongoRepo) CursorKey(ctx context.Context, id string) (Comment, error) {
	var c Comment
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Comment{}, ErrInvalidCursor
	}
	if err != nil {
		return Comment{}, err
	}
	return normalize(c), nil
}

// LockComment touches the document so that, inside a transaction, any other
// transaction writing it hits a write conflict and retries. Outside a
// transaction it is only a liveness check.
func (r mongoRepo) LockComment(ctx context.Context, id string) (bool, error) {
	res, err := r.coll.UpdateOne(ctx, liveByID(id), bson.M{
		"$set": bson.M{"updatedAt": Now()},
	})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (r mongoRepo) CountChildren(ctx context.Context, parentID string) (int64, error) {
	return r.Count(ctx, Filter{ParentID: &parentID})
}

func (r mongoRepo) SetChildCount(ctx context.Context, id string, n int64) (bool, error) {
	res, err := r.coll.UpdateOne(ctx, liveByID(id), bson.M{
		"$set": bson.M{"totalSubComments": n, "updatedAt": Now()},
	})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func filterDoc(f Filter) bson.M {
	if f.ParentID == nil {
		return bson.M{"parentId": nil, "isDeleted": false}
	}
	return bson.M{"parentId": *f.ParentID, "isDeleted": false}
}

// keysetDoc matches documents strictly after boundary under o.
func keysetDoc(o Order, boundary Comment) bson.M {
	op := "$gt"
	if o.Desc {
		op = "$lt"
	}
	if o.Field == FieldID {
		return bson.M{"_id": bson.M{op: boundary.ID}}
	}
	field := bsonField(o.Field)
	value := sortValue(o.Field, boundary)
	return bson.M{"$or": bson.A{
		bson.M{field: bson.M{op: value}},
		bson.M{field: value, "_id": bson.M{op: boundary.ID}},
	}}
}

func bsonField(f Field) string {
	if f == FieldID {
		return "_id"
	}
	return string(f)
}

// normalize restores the UTC location the driver drops when decoding dates.
func normalize(c Comment) Comment {
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if c.DeletedAt != nil {
		t := c.DeletedAt.UTC()
		c.DeletedAt = &t
	}
	return c
}
