package campaign

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoCampaigns = "campaigns"
	mongoCounters  = "counters"
)

// MongoStore keeps campaigns as documents keyed by their numeric id. Ids come
// from a counter document so they stay sequential like the other stores.
type MongoStore struct {
	db        *mongo.Database
	campaigns *mongo.Collection
	counters  *mongo.Collection
}

// NewMongoStore uses db and creates the keyword index if it is missing.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{
		db:        db,
		campaigns: db.Collection(mongoCampaigns),
		counters:  db.Collection(mongoCounters),
	}

	_, err := s.campaigns.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "keywords", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("creating keyword index: %w", err)
	}

	return s, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

func (s *MongoStore) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}

	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": mongoCampaigns},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocating campaign id: %w", err)
	}

	return counter.Seq, nil
}

func (s *MongoStore) Create(ctx context.Context, c Campaign) (Campaign, error) {
	if err := c.Validate(); err != nil {
		return Campaign{}, err
	}

	c.Keywords = NormalizeKeywords(c.Keywords)

	id, err := s.nextID(ctx)
	if err != nil {
		return Campaign{}, err
	}

	c.ID = id

	if _, err := s.campaigns.InsertOne(ctx, c); err != nil {
		return Campaign{}, fmt.Errorf("storing campaign %d: %w", id, err)
	}

	return c, nil
}

func (s *MongoStore) Get(ctx context.Context, id int64) (Campaign, error) {
	var c Campaign

	err := s.campaigns.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Campaign{}, ErrNotFound
	}

	if err != nil {
		return Campaign{}, fmt.Errorf("loading campaign %d: %w", id, err)
	}

	return fixKeywords(c), nil
}

func (s *MongoStore) List(ctx context.Context) ([]Campaign, error) {
	return s.find(ctx, bson.M{})
}

func (s *MongoStore) FindWithPositiveBalance(ctx context.Context, keywords []string) ([]Campaign, error) {
	keywords = NormalizeKeywords(keywords)
	if len(keywords) == 0 {
		return []Campaign{}, nil
	}

	return s.find(ctx, bson.M{
		"keywords": bson.M{"$in": keywords},
		"$expr":    bson.M{"$lt": bson.A{"$spending", "$budget"}},
	})
}

func (s *MongoStore) TryIncreaseSpending(ctx context.Context, id int64, amount float64) (bool, error) {
	res, err := s.campaigns.UpdateOne(ctx,
		bson.M{
			"_id": id,
			"$expr": bson.M{"$lte": bson.A{
				bson.M{"$add": bson.A{"$spending", amount}},
				"$budget",
			}},
		},
		bson.M{"$inc": bson.M{"spending": amount}},
	)
	if err != nil {
		return false, fmt.Errorf("increasing spending of campaign %d: %w", id, err)
	}

	if res.ModifiedCount == 1 {
		return true, nil
	}

	n, err := s.campaigns.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("checking campaign %d: %w", id, err)
	}

	if n == 0 {
		return false, ErrNotFound
	}

	return false, nil
}

func (s *MongoStore) find(ctx context.Context, filter bson.M) ([]Campaign, error) {
	cur, err := s.campaigns.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("querying campaigns: %w", err)
	}

	out := []Campaign{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decoding campaigns: %w", err)
	}

	for i := range out {
		out[i] = fixKeywords(out[i])
	}

	return out, nil
}

func fixKeywords(c Campaign) Campaign {
	if c.Keywords == nil {
		c.Keywords = []string{}
	}

	return c
}
