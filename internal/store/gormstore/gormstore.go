// Package gormstore persists FCP state in MySQL through gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/cexll/fcpbot/internal/store"
)

const openMaxElapsed = 30 * time.Second

// Store is a store.Store backed by a gorm connection.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// New wraps an open gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to MySQL, retrying transient connection failures, and migrates
// the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dsn = ensureParam(dsn, "parseTime", "true")
	if !strings.Contains(dsn, "charset=") {
		dsn = ensureParam(dsn, "charset", "utf8mb4")
		dsn = ensureParam(dsn, "collation", "utf8mb4_unicode_ci")
	}

	gormLogger := logger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = openMaxElapsed

	var db *gorm.DB
	err := backoff.Retry(func() error {
		conn, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
			Logger:         gormLogger,
			TranslateError: true,
		})
		if err != nil {
			if isRetryable(err) {
				log.Printf("[Store] MySQL not ready, retrying: %v", err)
				return err
			}
			return backoff.Permanent(err)
		}
		db = conn
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(store.Models()...); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return New(db), nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "bad connection", "i/o timeout", "connection reset", "gone away"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func ensureParam(dsn, key, val string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + val
}

// translate maps gorm errors onto the store sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrDuplicate
	default:
		return err
	}
}

func (s *Store) conn(ctx context.Context) *gorm.DB { return s.db.WithContext(ctx) }

func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

func (s *Store) upsert(ctx context.Context, v any) error {
	return translate(s.conn(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(v).Error)
}

func (s *Store) UpsertUser(ctx context.Context, u *store.User) error { return s.upsert(ctx, u) }

func (s *Store) UpsertIssue(ctx context.Context, i *store.Issue) error { return s.upsert(ctx, i) }

func (s *Store) GetIssue(ctx context.Context, id int64) (*store.Issue, error) {
	var i store.Issue
	if err := s.conn(ctx).First(&i, id).Error; err != nil {
		return nil, translate(err)
	}
	return &i, nil
}

func (s *Store) GetIssueByNumber(ctx context.Context, repo string, number int) (*store.Issue, error) {
	var i store.Issue
	err := s.conn(ctx).Where("repository = ? AND number = ?", repo, number).First(&i).Error
	if err != nil {
		return nil, translate(err)
	}
	return &i, nil
}

func (s *Store) UpsertComment(ctx context.Context, c *store.Comment) error { return s.upsert(ctx, c) }

func (s *Store) GetComment(ctx context.Context, id int64) (*store.Comment, error) {
	var c store.Comment
	if err := s.conn(ctx).First(&c, id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) CreateProposal(ctx context.Context, p *store.Proposal) error {
	return translate(s.conn(ctx).Create(p).Error)
}

func (s *Store) GetProposal(ctx context.Context, id int64) (*store.Proposal, error) {
	var p store.Proposal
	if err := s.conn(ctx).First(&p, id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) GetProposalByIssue(ctx context.Context, issueID int64) (*store.Proposal, error) {
	var p store.Proposal
	if err := s.conn(ctx).Where("issue_id = ?", issueID).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) UpdateProposal(ctx context.Context, p *store.Proposal) error {
	return s.save(ctx, p)
}

// save writes every column of v.
func (s *Store) save(ctx context.Context, v any) error {
	return translate(s.conn(ctx).Save(v).Error)
}

func (s *Store) DeleteProposal(ctx context.Context, id int64) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("proposal_id = ?", id).Delete(&store.ReviewRequest{}).Error; err != nil {
			return err
		}
		if err := tx.Where("proposal_id = ?", id).Delete(&store.Concern{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&store.Proposal{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *Store) ListProposals(ctx context.Context, stage store.Stage) ([]store.Proposal, error) {
	q := s.conn(ctx).Order("id")
	switch stage {
	case store.StagePending:
		q = q.Where("fcp_start IS NULL")
	case store.StageStarted:
		q = q.Where("fcp_start IS NOT NULL AND fcp_closed = ?", false)
	case store.StageOpen:
		q = q.Where("fcp_closed = ?", false)
	}
	var out []store.Proposal
	if err := q.Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *Store) CreateReviewRequests(ctx context.Context, reqs []store.ReviewRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	return translate(s.conn(ctx).Create(&reqs).Error)
}

func (s *Store) ListReviewRequests(ctx context.Context, proposalID int64) ([]store.ReviewRequest, error) {
	var out []store.ReviewRequest
	err := s.conn(ctx).Where("proposal_id = ?", proposalID).Order("reviewer").Find(&out).Error
	return out, translate(err)
}

func (s *Store) UpdateReviewRequest(ctx context.Context, r *store.ReviewRequest) error {
	return s.save(ctx, r)
}

func (s *Store) CreateConcern(ctx context.Context, c *store.Concern) error {
	c.NameKey = store.ExactKey(c.Name)
	return translate(s.conn(ctx).Create(c).Error)
}

func (s *Store) ListConcerns(ctx context.Context, proposalID int64) ([]store.Concern, error) {
	var out []store.Concern
	err := s.conn(ctx).Where("proposal_id = ?", proposalID).Order("id").Find(&out).Error
	return out, translate(err)
}

func (s *Store) UpdateConcern(ctx context.Context, c *store.Concern) error {
	return s.save(ctx, c)
}

func (s *Store) CreateFeedbackRequest(ctx context.Context, f *store.FeedbackRequest) error {
	return translate(s.conn(ctx).Create(f).Error)
}

func (s *Store) ListOpenFeedbackRequests(ctx context.Context, issueID int64) ([]store.FeedbackRequest, error) {
	var out []store.FeedbackRequest
	err := s.conn(ctx).Where("issue_id = ? AND feedback_comment IS NULL", issueID).Order("id").Find(&out).Error
	return out, translate(err)
}

func (s *Store) UpdateFeedbackRequest(ctx context.Context, f *store.FeedbackRequest) error {
	return s.save(ctx, f)
}

func (s *Store) CreatePoll(ctx context.Context, p *store.Poll) error {
	p.QuestionKey = store.ExactKey(p.Question)
	return translate(s.conn(ctx).Create(p).Error)
}

func (s *Store) GetPollByQuestion(ctx context.Context, issueID int64, question string) (*store.Poll, error) {
	var p store.Poll
	if err := s.conn(ctx).Where("issue_id = ? AND question_key = ?", issueID, store.ExactKey(question)).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) ListOpenPolls(ctx context.Context) ([]store.Poll, error) {
	var out []store.Poll
	err := s.conn(ctx).Where("closed = ?", false).Order("id").Find(&out).Error
	return out, translate(err)
}

func (s *Store) UpdatePoll(ctx context.Context, p *store.Poll) error {
	return s.save(ctx, p)
}

func (s *Store) CreatePollReviewRequests(ctx context.Context, reqs []store.PollReviewRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	return translate(s.conn(ctx).Create(&reqs).Error)
}

func (s *Store) ListPollReviewRequests(ctx context.Context, pollID int64) ([]store.PollReviewRequest, error) {
	var out []store.PollReviewRequest
	err := s.conn(ctx).Where("poll_id = ?", pollID).Order("reviewer").Find(&out).Error
	return out, translate(err)
}

func (s *Store) UpdatePollReviewRequest(ctx context.Context, r *store.PollReviewRequest) error {
	return s.save(ctx, r)
}
