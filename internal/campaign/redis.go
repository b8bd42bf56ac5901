package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const (
	redisIDKey      = "campaign:next_id"
	redisIndexKey   = "campaigns"
	redisKeyPrefix  = "campaign:"
	redisWordPrefix = "campaign:keyword:"
)

// tryIncreaseScript adds ARGV[1] to the spending field of KEYS[1] unless it
// would pass the budget. Returns -1 missing, 0 refused, 1 applied.
var tryIncreaseScript = redis.NewScript(`
local budget = redis.call('HGET', KEYS[1], 'budget')
if not budget then
	return -1
end
local spending = redis.call('HGET', KEYS[1], 'spending') or '0'
if tonumber(spending) + tonumber(ARGV[1]) > tonumber(budget) then
	return 0
end
redis.call('HINCRBYFLOAT', KEYS[1], 'spending', ARGV[1])
return 1
`)

// RedisStore keeps each campaign in a hash, an id-scored sorted set as the
// index, and one set of ids per keyword.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client. The caller owns the client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func campaignKey(id int64) string {
	return redisKeyPrefix + strconv.FormatInt(id, 10)
}

func keywordKey(k string) string {
	return redisWordPrefix + k
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Create(ctx context.Context, c Campaign) (Campaign, error) {
	if err := c.Validate(); err != nil {
		return Campaign{}, err
	}

	c.Keywords = NormalizeKeywords(c.Keywords)

	keywords, err := json.Marshal(c.Keywords)
	if err != nil {
		return Campaign{}, fmt.Errorf("encoding keywords: %w", err)
	}

	id, err := s.client.Incr(ctx, redisIDKey).Result()
	if err != nil {
		return Campaign{}, fmt.Errorf("allocating campaign id: %w", err)
	}

	c.ID = id

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, campaignKey(id),
			"name", c.Name,
			"keywords", string(keywords),
			"budget", formatFloat(c.Budget),
			"spending", formatFloat(c.Spending),
		)
		pipe.ZAdd(ctx, redisIndexKey, &redis.Z{Score: float64(id), Member: id})

		for _, k := range c.Keywords {
			pipe.SAdd(ctx, keywordKey(k), id)
		}

		return nil
	})
	if err != nil {
		return Campaign{}, fmt.Errorf("storing campaign %d: %w", id, err)
	}

	return c, nil
}

func (s *RedisStore) Get(ctx context.Context, id int64) (Campaign, error) {
	fields, err := s.client.HGetAll(ctx, campaignKey(id)).Result()
	if err != nil {
		return Campaign{}, fmt.Errorf("loading campaign %d: %w", id, err)
	}

	if len(fields) == 0 {
		return Campaign{}, ErrNotFound
	}

	return decodeHash(id, fields)
}

func (s *RedisStore) List(ctx context.Context) ([]Campaign, error) {
	members, err := s.client.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing campaigns: %w", err)
	}

	ids, err := parseIDs(members)
	if err != nil {
		return nil, err
	}

	return s.load(ctx, ids)
}

func (s *RedisStore) FindWithPositiveBalance(ctx context.Context, keywords []string) ([]Campaign, error) {
	keywords = NormalizeKeywords(keywords)
	if len(keywords) == 0 {
		return []Campaign{}, nil
	}

	keys := make([]string, len(keywords))
	for i, k := range keywords {
		keys[i] = keywordKey(k)
	}

	members, err := s.client.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("finding campaigns by keywords: %w", err)
	}

	ids, err := parseIDs(members)
	if err != nil {
		return nil, err
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	all, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := all[:0]
	for _, c := range all {
		if c.HasPositiveBalance() {
			out = append(out, c)
		}
	}

	return out, nil
}

func (s *RedisStore) TryIncreaseSpending(ctx context.Context, id int64, amount float64) (bool, error) {
	res, err := tryIncreaseScript.Run(ctx, s.client, []string{campaignKey(id)}, formatFloat(amount)).Int()
	if err != nil {
		return false, fmt.Errorf("increasing spending of campaign %d: %w", id, err)
	}

	switch res {
	case -1:
		return false, ErrNotFound
	case 0:
		return false, nil
	default:
		return true, nil
	}
}

// load fetches campaigns in one round trip, skipping ids whose hash is gone.
func (s *RedisStore) load(ctx context.Context, ids []int64) ([]Campaign, error) {
	out := make([]Campaign, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cmds := make([]*redis.StringStringMapCmd, len(ids))

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, campaignKey(id))
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading campaigns: %w", err)
	}

	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}

		c, err := decodeHash(ids[i], fields)
		if err != nil {
			return nil, err
		}

		out = append(out, c)
	}

	return out, nil
}

func decodeHash(id int64, fields map[string]string) (Campaign, error) {
	c := Campaign{ID: id, Name: fields["name"], Keywords: []string{}}

	if raw := fields["keywords"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Keywords); err != nil {
			return Campaign{}, fmt.Errorf("decoding keywords of campaign %d: %w", id, err)
		}
	}

	var err error

	if c.Budget, err = parseFloat(fields["budget"]); err != nil {
		return Campaign{}, fmt.Errorf("decoding budget of campaign %d: %w", id, err)
	}

	if c.Spending, err = parseFloat(fields["spending"]); err != nil {
		return Campaign{}, fmt.Errorf("decoding spending of campaign %d: %w", id, err)
	}

	return c, nil
}

func parseIDs(members []string) ([]int64, error) {
	ids := make([]int64, 0, len(members))

	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad campaign id %q in index: %w", m, err)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}

	return strconv.ParseFloat(s, 64)
}
