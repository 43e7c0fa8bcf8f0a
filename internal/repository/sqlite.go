package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"quizpicks/internal/model"
	"quizpicks/internal/ranking"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore persists sessions in a single SQLite file
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies the schema.
// The connection runs in WAL mode with a single writer.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close(context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) ListQuestions(ctx context.Context) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, prompt, type, options_json FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []model.Question
	for rows.Next() {
		var (
			id      int64
			q       model.Question
			options string
		)
		if err := rows.Scan(&id, &q.Prompt, &q.Type, &options); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.ID = strconv.FormatInt(id, 10)
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, fmt.Errorf("decode options of question %s: %w", q.ID, err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddQuestion(ctx context.Context, q model.Question) (string, error) {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return "", fmt.Errorf("encode options: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (prompt, type, options_json) VALUES (?, ?, ?)`,
		q.Prompt, string(q.Type), string(options))
	if err != nil {
		return "", fmt.Errorf("add question: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("add question: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *SQLiteStore) SeedQuestions(ctx context.Context, qs []model.Question) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
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

func (s *SQLiteStore) SaveResponse(ctx context.Context, userID, date string, answer model.QuizAnswer) error {
	value, err := json.Marshal(answer.Value)
	if err != nil {
		return fmt.Errorf("encode answer %s: %w", answer.QuestionID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_responses (user_id, response_date, qid, answer_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, response_date, qid) DO UPDATE SET answer_json = excluded.answer_json
	`, userID, date, answer.QuestionID, string(value))
	if err != nil {
		return fmt.Errorf("save response: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListResponses(ctx context.Context, userID, date string) ([]model.StoredResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.qid, COALESCE(q.prompt, ''), r.answer_json
		FROM user_responses r
		LEFT JOIN questions q ON CAST(q.id AS TEXT) = r.qid
		WHERE r.user_id = ? AND r.response_date = ?
		ORDER BY r.id
	`, userID, date)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []model.StoredResponse
	for rows.Next() {
		r := model.StoredResponse{UserID: userID, ResponseDate: date}
		var answer string
		if err := rows.Scan(&r.QuestionID, &r.Prompt, &answer); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		if err := json.Unmarshal([]byte(answer), &r.Value); err != nil {
			return nil, fmt.Errorf("decode answer %s: %w", r.QuestionID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveQueries(ctx context.Context, userID, date string, queries []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range queries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO search_queries (user_id, response_date, query) VALUES (?, ?, ?)`,
				userID, date, q); err != nil {
				return fmt.Errorf("save query: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListQueries(ctx context.Context, userID, date string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT query FROM search_queries WHERE user_id = ? AND response_date = ? ORDER BY id`,
		userID, date)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan query: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveProducts(ctx context.Context, userID, date string, source model.ProductSource, products []model.Product) (int, error) {
	stored := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range products {
			if p.ProductID == "" {
				continue
			}
			images, err := json.Marshal(p.Images)
			if err != nil {
				return fmt.Errorf("encode images of %s: %w", p.ProductID, err)
			}
			var raw sql.NullString
			if p.Raw != nil {
				b, err := json.Marshal(p.Raw)
				if err != nil {
					return fmt.Errorf("encode raw payload of %s: %w", p.ProductID, err)
				}
				raw = sql.NullString{String: string(b), Valid: true}
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO products
				(user_id, response_date, product_id, source, title, vendor, price, currency, url, thumbnail_url, images_json, raw_json)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (user_id, response_date, product_id, source) DO UPDATE SET
					title = excluded.title,
					vendor = excluded.vendor,
					price = excluded.price,
					currency = excluded.currency,
					url = excluded.url,
					thumbnail_url = excluded.thumbnail_url,
					images_json = excluded.images_json,
					raw_json = excluded.raw_json
			`, userID, date, p.ProductID, string(source), p.Title, p.Vendor, p.Price, p.Currency,
				p.URL, p.ThumbnailURL, string(images), raw)
			if err != nil {
				return fmt.Errorf("save product %s: %w", p.ProductID, err)
			}
			for _, url := range productImages(p) {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO product_images (user_id, response_date, product_id, image_url)
					VALUES (?, ?, ?, ?)
					ON CONFLICT DO NOTHING
				`, userID, date, p.ProductID, url); err != nil {
					return fmt.Errorf("save image of %s: %w", p.ProductID, err)
				}
			}
			stored++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return stored, nil
}

func (s *SQLiteStore) ListProducts(ctx context.Context, userID, date string, exclude []string) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, title, vendor, price, currency, url, thumbnail_url, images_json, raw_json
		FROM products
		WHERE user_id = ? AND response_date = ?
		ORDER BY id
	`, userID, date)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	skip := ranking.IDSet(exclude)
	var out []model.Product
	for rows.Next() {
		var (
			p      model.Product
			images string
			raw    sql.NullString
		)
		if err := rows.Scan(&p.ProductID, &p.Title, &p.Vendor, &p.Price, &p.Currency,
			&p.URL, &p.ThumbnailURL, &images, &raw); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if _, ok := skip[p.ProductID]; ok {
			continue
		}
		skip[p.ProductID] = struct{}{}
		if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
			return nil, fmt.Errorf("decode images of %s: %w", p.ProductID, err)
		}
		if raw.Valid {
			if err := json.Unmarshal([]byte(raw.String), &p.Raw); err != nil {
				return nil, fmt.Errorf("decode raw payload of %s: %w", p.ProductID, err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveVision(ctx context.Context, userID, date string, data model.VisionData) error {
	tags, err := json.Marshal(data.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	attrs, err := json.Marshal(data.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	if data.ProcessedAt.IsZero() {
		data.ProcessedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO product_vision
		(user_id, response_date, product_id, image_url, caption, tags_json, attributes_json, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, response_date, product_id, image_url) DO UPDATE SET
			caption = excluded.caption,
			tags_json = excluded.tags_json,
			attributes_json = excluded.attributes_json,
			processed_at = excluded.processed_at
	`, userID, date, data.ProductID, data.ImageURL, data.Caption, string(tags), string(attrs),
		data.ProcessedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save vision data: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListVision(ctx context.Context, userID, date string) ([]model.VisionData, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.product_id, v.image_url, v.caption, v.tags_json, v.attributes_json, v.processed_at
		FROM product_vision v
		LEFT JOIN product_images i
			ON i.user_id = v.user_id AND i.response_date = v.response_date
			AND i.product_id = v.product_id AND i.image_url = v.image_url
		WHERE v.user_id = ? AND v.response_date = ?
		ORDER BY i.id
	`, userID, date)
	if err != nil {
		return nil, fmt.Errorf("list vision data: %w", err)
	}
	defer rows.Close()

	var out []model.VisionData
	for rows.Next() {
		var (
			v                    model.VisionData
			tags, attrs, process string
		)
		if err := rows.Scan(&v.ProductID, &v.ImageURL, &v.Caption, &tags, &attrs, &process); err != nil {
			return nil, fmt.Errorf("scan vision data: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &v.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &v.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		v.ProcessedAt, _ = time.Parse(time.RFC3339Nano, process)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UnprocessedImages(ctx context.Context, userID, date string) ([]model.ImageRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.product_id, i.image_url
		FROM product_images i
		LEFT JOIN product_vision v
			ON v.user_id = i.user_id AND v.response_date = i.response_date
			AND v.product_id = i.product_id AND v.image_url = i.image_url
		WHERE i.user_id = ? AND i.response_date = ? AND v.product_id IS NULL
		ORDER BY i.id
	`, userID, date)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed images: %w", err)
	}
	defer rows.Close()

	var out []model.ImageRef
	for rows.Next() {
		var ref model.ImageRef
		if err := rows.Scan(&ref.ProductID, &ref.ImageURL); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ClearRanking(ctx context.Context, userID, date string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM ranked_products WHERE user_id = ? AND response_date = ?`, userID, date)
	if err != nil {
		return fmt.Errorf("clear ranking: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveRanking(ctx context.Context, userID, date string, version int, entries []model.RankEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO ranked_products (user_id, response_date, rank, context_version, product_id, score, reason)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (user_id, response_date, rank, context_version) DO UPDATE SET
					product_id = excluded.product_id,
					score = excluded.score,
					reason = excluded.reason
			`, userID, date, e.Rank, version, e.ProductID, e.Score, e.Reason)
			if err != nil {
				return fmt.Errorf("save rank %d: %w", e.Rank, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListRanking(ctx context.Context, userID, date string) ([]model.RankingRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rank, context_version, product_id, score, reason
		FROM ranked_products
		WHERE user_id = ? AND response_date = ?
		ORDER BY rank, context_version
	`, userID, date)
	if err != nil {
		return nil, fmt.Errorf("list ranking: %w", err)
	}
	defer rows.Close()

	var out []model.RankingRow
	for rows.Next() {
		r := model.RankingRow{UserID: userID, ResponseDate: date}
		if err := rows.Scan(&r.Rank, &r.ContextVersion, &r.ProductID, &r.Score, &r.Reason); err != nil {
			return nil, fmt.Errorf("scan ranking row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MaxContextVersion(ctx context.Context, userID, date string) (int, error) {
	return s.maxOf(ctx, "context_version", userID, date)
}

func (s *SQLiteStore) MaxRank(ctx context.Context, userID, date string) (int, error) {
	return s.maxOf(ctx, "rank", userID, date)
}

func (s *SQLiteStore) maxOf(ctx context.Context, column, userID, date string) (int, error) {
	var max int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(%s), 0) FROM ranked_products WHERE user_id = ? AND response_date = ?`, column),
		userID, date).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max %s: %w", column, err)
	}
	return max, nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
