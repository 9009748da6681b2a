package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"partnerline/internal/domain"
)

// AppendMessage assigns the next thread sequence number and stores m.
func (r Repo) AppendMessage(ctx context.Context, tx *sql.Tx, m domain.ProposalMessage) (domain.ProposalMessage, error) {
	q := r.q(tx)
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq),0)+1 FROM proposal_messages WHERE proposal_id=?`, m.ProposalID).Scan(&m.Seq); err != nil {
		return m, fmt.Errorf("next message seq: %w", err)
	}
	query, args, err := builder.Insert("proposal_messages").
		Columns("id", "proposal_id", "seq", "kind", "sender_id", "sender_role", "sender_name", "content", "created_at").
		Values(m.ID, m.ProposalID, m.Seq, string(m.Kind), nullable(m.SenderID), string(m.SenderRole), m.SenderName, m.Content, m.CreatedAt).
		ToSql()
	if err != nil {
		return m, err
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return m, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (r Repo) ListMessages(ctx context.Context, proposalID string) ([]domain.ProposalMessage, error) {
	query, args, err := builder.Select("id", "proposal_id", "seq", "kind", "COALESCE(sender_id,'')", "sender_role", "sender_name", "content", "created_at").
		From("proposal_messages").
		Where(sq.Eq{"proposal_id": proposalID}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ProposalMessage{}
	for rows.Next() {
		var m domain.ProposalMessage
		var kind, role string
		if err := rows.Scan(&m.ID, &m.ProposalID, &m.Seq, &kind, &m.SenderID, &role, &m.SenderName, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Kind = domain.MessageKind(kind)
		m.SenderRole = domain.Role(role)
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) InsertRevision(ctx context.Context, tx *sql.Tx, rev domain.Revision) error {
	content, err := json.Marshal(rev.Content)
	if err != nil {
		return fmt.Errorf("encode revision content: %w", err)
	}
	changed, err := json.Marshal(rev.ChangedSections)
	if err != nil {
		return fmt.Errorf("encode changed sections: %w", err)
	}
	query, args, err := builder.Insert("proposal_revisions").
		Columns("proposal_id", "revision", "author_id", "author_role", "content_json", "changed_json", "created_at").
		Values(rev.ProposalID, rev.Revision, rev.AuthorID, string(rev.AuthorRole), string(content), string(changed), rev.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.q(tx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}
	return nil
}

func (r Repo) ListRevisions(ctx context.Context, proposalID string) ([]domain.Revision, error) {
	query, args, err := builder.Select("proposal_id", "revision", "author_id", "author_role", "content_json", "changed_json", "created_at").
		From("proposal_revisions").
		Where(sq.Eq{"proposal_id": proposalID}).
		OrderBy("revision ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Revision{}
	for rows.Next() {
		var rev domain.Revision
		var role, content, changed string
		if err := rows.Scan(&rev.ProposalID, &rev.Revision, &rev.AuthorID, &role, &content, &changed, &rev.CreatedAt); err != nil {
			return nil, err
		}
		rev.AuthorRole = domain.Role(role)
		if err := json.Unmarshal([]byte(content), &rev.Content); err != nil {
			return nil, fmt.Errorf("decode revision %d: %w", rev.Revision, err)
		}
		if err := json.Unmarshal([]byte(changed), &rev.ChangedSections); err != nil {
			return nil, fmt.Errorf("decode revision %d sections: %w", rev.Revision, err)
		}
		res = append(res, rev)
	}
	return res, rows.Err()
}
