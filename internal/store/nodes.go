package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"codeloops/internal/graph"
)

// SaveGraph replaces the stored knowledge graph of a session with the
// manager's current contents. List fields are stored as JSON columns.
func (s *Store) SaveGraph(sessionID string, mgr *graph.Manager) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM graph_nodes WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear graph nodes: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO graph_nodes (
			session_id, node_id, position, thought, role, verdict,
			verdict_reason, verdict_references_json, target, parents_json,
			children_json, needs_more, created_at, branch_label,
			tags_json, artifacts_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare node insert: %w", err)
	}
	defer stmt.Close()

	for i, node := range mgr.All() {
		refs, err := jsonList(node.VerdictReferences)
		if err != nil {
			return err
		}
		parents, err := jsonList(node.Parents)
		if err != nil {
			return err
		}
		children, err := jsonList(node.Children)
		if err != nil {
			return err
		}
		tags, err := jsonList(node.Tags)
		if err != nil {
			return err
		}
		artifacts, err := jsonList(node.Artifacts)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(
			sessionID, node.ID, i, node.Thought, string(node.Role),
			nullStr(string(node.Verdict)), nullStr(node.VerdictReason), refs,
			nullStr(node.Target), parents, children, node.NeedsMore,
			node.CreatedAt.Format(time.RFC3339Nano), nullStr(node.BranchLabel),
			tags, artifacts,
		); err != nil {
			return fmt.Errorf("insert graph node %s: %w", node.ID, err)
		}
	}
	return tx.Commit()
}

// LoadGraph restores a session's knowledge graph into a fresh Manager.
func (s *Store) LoadGraph(sessionID string) (*graph.Manager, error) {
	rows, err := s.db.Query(`
		SELECT node_id, thought, role, verdict, verdict_reason,
		       verdict_references_json, target, parents_json, children_json,
		       needs_more, created_at, branch_label, tags_json, artifacts_json
		FROM graph_nodes WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	defer rows.Close()

	var nodes []*graph.Node
	for rows.Next() {
		var (
			node                           graph.Node
			role                           string
			verdict, reason, target, label sql.NullString
			refs, parents, children        sql.NullString
			tags, artifacts                sql.NullString
			createdAt                      string
		)
		if err := rows.Scan(&node.ID, &node.Thought, &role, &verdict, &reason,
			&refs, &target, &parents, &children, &node.NeedsMore,
			&createdAt, &label, &tags, &artifacts); err != nil {
			return nil, fmt.Errorf("scan graph node: %w", err)
		}
		node.Role = graph.Role(role)
		node.Verdict = graph.Verdict(verdict.String)
		node.VerdictReason = reason.String
		node.Target = target.String
		node.BranchLabel = label.String
		node.CreatedAt = parseTime(createdAt)
		if err := fromJSONList(refs, &node.VerdictReferences); err != nil {
			return nil, err
		}
		if err := fromJSONList(parents, &node.Parents); err != nil {
			return nil, err
		}
		if err := fromJSONList(children, &node.Children); err != nil {
			return nil, err
		}
		if err := fromJSONList(tags, &node.Tags); err != nil {
			return nil, err
		}
		if err := fromJSONList(artifacts, &node.Artifacts); err != nil {
			return nil, err
		}
		nodes = append(nodes, &node)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	mgr := graph.NewManager()
	mgr.Load(nodes)
	return mgr, nil
}

func jsonList(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode list column: %w", err)
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}

func fromJSONList(col sql.NullString, dst any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), dst); err != nil {
		return fmt.Errorf("decode list column: %w", err)
	}
	return nil
}
