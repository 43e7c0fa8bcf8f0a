package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quizpicks/internal/model"
	"quizpicks/internal/ranking"
)

type responseDoc struct {
	UserID       string `bson:"userId"`
	ResponseDate string `bson:"responseDate"`
	QuestionID   string `bson:"qid"`
	AnswerJSON   string `bson:"answerJson"`
	Seq          int64  `bson:"seq"`
}

type queryDoc struct {
	UserID       string `bson:"userId"`
	ResponseDate string `bson:"responseDate"`
	Query        string `bson:"query"`
	Seq          int64  `bson:"seq"`
}

type productDoc struct {
	model.Product `bson:",inline"`
	UserID        string `bson:"userId"`
	ResponseDate  string `bson:"responseDate"`
	Source        string `bson:"source"`
	RawJSON       string `bson:"rawJson,omitempty"`
	Seq           int64  `bson:"seq"`
}

type imageDoc struct {
	model.ImageRef `bson:",inline"`
	Seq            int64 `bson:"seq"`
}

// MongoStore persists sessions in MongoDB
type MongoStore struct {
	client    *mongo.Client
	questions *mongo.Collection
	responses *mongo.Collection
	queries   *mongo.Collection
	products  *mongo.Collection
	images    *mongo.Collection
	vision    *mongo.Collection
	rankings  *mongo.Collection
	seq       atomic.Int64
}

// NewMongoStore binds the store to database on client
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	s := &MongoStore{
		client:    client,
		questions: db.Collection("questions"),
		responses: db.Collection("user_responses"),
		queries:   db.Collection("search_queries"),
		products:  db.Collection("products"),
		images:    db.Collection("product_images"),
		vision:    db.Collection("product_vision"),
		rankings:  db.Collection("ranked_products"),
	}
	s.seq.Store(time.Now().UnixNano())
	return s
}

// EnsureIndexes creates the unique keys the upserts rely on
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := map[*mongo.Collection]bson.D{
		s.responses: {{Key: "userId", Value: 1}, {Key: "responseDate", Value: 1}, {Key: "qid", Value: 1}},
		s.products:  {{Key: "userId", Value: 1}, {Key: "responseDate", Value: 1}, {Key: "productId", Value: 1}, {Key: "source", Value: 1}},
		s.images:    {{Key: "userId", Value: 1}, {Key: "responseDate", Value: 1}, {Key: "productId", Value: 1}, {Key: "imageUrl", Value: 1}},
		s.vision:    {{Key: "userId", Value: 1}, {Key: "responseDate", Value: 1}, {Key: "productId", Value: 1}, {Key: "imageUrl", Value: 1}},
		s.rankings:  {{Key: "userId", Value: 1}, {Key: "responseDate", Value: 1}, {Key: "rank", Value: 1}, {Key: "contextVersion", Value: 1}},
	}
	for coll, keys := range indexes {
		if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: unique}); err != nil {
			return fmt.Errorf("create index on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) nextSeq() int64 {
	return s.seq.Add(1)
}

func session(userID, date string) bson.M {
	return bson.M{"userId": userID, "responseDate": date}
}

func (s *MongoStore) ListQuestions(ctx context.Context) ([]model.Question, error) {
	cursor, err := s.questions.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var questions []model.Question
	if err = cursor.All(ctx, &questions); err != nil {
		return nil, err
	}
	sortQuestions(questions)
	return questions, nil
}

func (s *MongoStore) AddQuestion(ctx context.Context, q model.Question) (string, error) {
	existing, err := s.ListQuestions(ctx)
	if err != nil {
		return "", err
	}
	q.ID = nextQuestionID(existing)
	if _, err := s.questions.InsertOne(ctx, q); err != nil {
		return "", err
	}
	return q.ID, nil
}

func (s *MongoStore) SeedQuestions(ctx context.Context, qs []model.Question) (int, error) {
	count, err := s.questions.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}
	for _, q := range qs {
		if _, err := s.AddQuestion(ctx, q); err != nil {
			return 0, err
		}
	}
	return len(qs), nil
}

func (s *MongoStore) SaveResponse(ctx context.Context, userID, date string, answer model.QuizAnswer) error {
	value, err := json.Marshal(answer.Value)
	if err != nil {
		return fmt.Errorf("encode answer %s: %w", answer.QuestionID, err)
	}
	filter := bson.M{"userId": userID, "responseDate": date, "qid": answer.QuestionID}
	update := bson.M{
		"$set":         bson.M{"answerJson": string(value)},
		"$setOnInsert": bson.M{"seq": s.nextSeq()},
	}
	_, err = s.responses.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (s *MongoStore) ListResponses(ctx context.Context, userID, date string) ([]model.StoredResponse, error) {
	cursor, err := s.responses.Find(ctx, session(userID, date), options.Find().SetSort(bson.M{"seq": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []responseDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	questions, err := s.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	prompts := promptIndex(questions)

	out := make([]model.StoredResponse, 0, len(docs))
	for _, d := range docs {
		r := model.StoredResponse{UserID: userID, ResponseDate: date, QuestionID: d.QuestionID, Prompt: prompts[d.QuestionID]}
		if err := json.Unmarshal([]byte(d.AnswerJSON), &r.Value); err != nil {
			return nil, fmt.Errorf("decode answer %s: %w", d.QuestionID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *MongoStore) SaveQueries(ctx context.Context, userID, date string, queries []string) error {
	if len(queries) == 0 {
		return nil
	}
	docs := make([]any, len(queries))
	for i, q := range queries {
		docs[i] = queryDoc{UserID: userID, ResponseDate: date, Query: q, Seq: s.nextSeq()}
	}
	_, err := s.queries.InsertMany(ctx, docs)
	return err
}

func (s *MongoStore) ListQueries(ctx context.Context, userID, date string) ([]string, error) {
	cursor, err := s.queries.Find(ctx, session(userID, date), options.Find().SetSort(bson.M{"seq": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []queryDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Query
	}
	return out, nil
}

func (s *MongoStore) SaveProducts(ctx context.Context, userID, date string, source model.ProductSource, products []model.Product) (int, error) {
	stored := 0
	for _, p := range products {
		if p.ProductID == "" {
			continue
		}
		doc := productDoc{Product: p, UserID: userID, ResponseDate: date, Source: string(source)}
		if p.Raw != nil {
			raw, err := json.Marshal(p.Raw)
			if err != nil {
				return stored, fmt.Errorf("encode raw payload of %s: %w", p.ProductID, err)
			}
			doc.RawJSON = string(raw)
			doc.Product.Raw = nil
		}
		set, err := toSetDoc(doc)
		if err != nil {
			return stored, err
		}
		filter := bson.M{"userId": userID, "responseDate": date, "productId": p.ProductID, "source": string(source)}
		update := bson.M{"$set": set, "$setOnInsert": bson.M{"seq": s.nextSeq()}}
		if _, err := s.products.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
			return stored, fmt.Errorf("save product %s: %w", p.ProductID, err)
		}

		for _, url := range productImages(p) {
			ref := bson.M{"userId": userID, "responseDate": date, "productId": p.ProductID, "imageUrl": url}
			upd := bson.M{"$setOnInsert": bson.M{"seq": s.nextSeq()}}
			if _, err := s.images.UpdateOne(ctx, ref, upd, options.Update().SetUpsert(true)); err != nil {
				return stored, fmt.Errorf("save image of %s: %w", p.ProductID, err)
			}
		}
		stored++
	}
	return stored, nil
}

// toSetDoc flattens doc for a $set, leaving seq to $setOnInsert
func toSetDoc(doc productDoc) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode product %s: %w", doc.ProductID, err)
	}
	var set bson.M
	if err := bson.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("encode product %s: %w", doc.ProductID, err)
	}
	delete(set, "seq")
	return set, nil
}

func (s *MongoStore) ListProducts(ctx context.Context, userID, date string, exclude []string) ([]model.Product, error) {
	cursor, err := s.products.Find(ctx, session(userID, date), options.Find().SetSort(bson.M{"seq": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []productDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	skip := ranking.IDSet(exclude)
	out := make([]model.Product, 0, len(docs))
	for _, d := range docs {
		if _, ok := skip[d.ProductID]; ok {
			continue
		}
		skip[d.ProductID] = struct{}{}
		p := d.Product
		if d.RawJSON != "" {
			if err := json.Unmarshal([]byte(d.RawJSON), &p.Raw); err != nil {
				return nil, fmt.Errorf("decode raw payload of %s: %w", p.ProductID, err)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *MongoStore) SaveVision(ctx context.Context, userID, date string, data model.VisionData) error {
	if data.ProcessedAt.IsZero() {
		data.ProcessedAt = time.Now().UTC()
	}
	filter := bson.M{"userId": userID, "responseDate": date, "productId": data.ProductID, "imageUrl": data.ImageURL}
	update := bson.M{"$set": bson.M{
		"caption":     data.Caption,
		"tags":        data.Tags,
		"attributes":  data.Attributes,
		"processedAt": data.ProcessedAt,
	}}
	_, err := s.vision.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (s *MongoStore) ListVision(ctx context.Context, userID, date string) ([]model.VisionData, error) {
	cursor, err := s.vision.Find(ctx, session(userID, date), options.Find().SetSort(bson.M{"processedAt": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []model.VisionData
	if err = cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) UnprocessedImages(ctx context.Context, userID, date string) ([]model.ImageRef, error) {
	cursor, err := s.images.Find(ctx, session(userID, date), options.Find().SetSort(bson.M{"seq": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var images []imageDoc
	if err = cursor.All(ctx, &images); err != nil {
		return nil, err
	}
	done, err := s.ListVision(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	processed := make(map[string]struct{}, len(done))
	for _, v := range done {
		processed[v.ProductID+"|"+v.ImageURL] = struct{}{}
	}

	var out []model.ImageRef
	for _, img := range images {
		if _, ok := processed[img.ProductID+"|"+img.ImageURL]; !ok {
			out = append(out, img.ImageRef)
		}
	}
	return out, nil
}

func (s *MongoStore) ClearRanking(ctx context.Context, userID, date string) error {
	_, err := s.rankings.DeleteMany(ctx, session(userID, date))
	return err
}

func (s *MongoStore) SaveRanking(ctx context.Context, userID, date string, version int, entries []model.RankEntry) error {
	for _, e := range entries {
		row := model.RankingRow{
			UserID:         userID,
			ResponseDate:   date,
			Rank:           e.Rank,
			ProductID:      e.ProductID,
			Score:          e.Score,
			Reason:         e.Reason,
			ContextVersion: version,
		}
		filter := bson.M{"userId": userID, "responseDate": date, "rank": e.Rank, "contextVersion": version}
		if _, err := s.rankings.ReplaceOne(ctx, filter, row, options.Replace().SetUpsert(true)); err != nil {
			return fmt.Errorf("save rank %d: %w", e.Rank, err)
		}
	}
	return nil
}

func (s *MongoStore) ListRanking(ctx context.Context, userID, date string) ([]model.RankingRow, error) {
	opts := options.Find().SetSort(bson.D{{Key: "rank", Value: 1}, {Key: "contextVersion", Value: 1}})
	cursor, err := s.rankings.Find(ctx, session(userID, date), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []model.RankingRow
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *MongoStore) MaxContextVersion(ctx context.Context, userID, date string) (int, error) {
	return s.maxOf(ctx, "contextVersion", userID, date)
}

func (s *MongoStore) MaxRank(ctx context.Context, userID, date string) (int, error) {
	return s.maxOf(ctx, "rank", userID, date)
}

func (s *MongoStore) maxOf(ctx context.Context, field, userID, date string) (int, error) {
	opts := options.FindOne().SetSort(bson.M{field: -1})
	var row model.RankingRow
	err := s.rankings.FindOne(ctx, session(userID, date), opts).Decode(&row)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if field == "rank" {
		return row.Rank, nil
	}
	return row.ContextVersion, nil
}
