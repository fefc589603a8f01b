package memory

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/raidcore/raidcore/internal/storerouter"
)

// scanItem reads one memories row in get_recent's column order. The two
// backends disagree on id/timestamp/embedding representation, so this
// branches on s.backend rather than forcing a lowest-common-denominator
// type onto both drivers.
func (s *Store) scanItem(rows storerouter.Rows) (Item, error) {
	var item Item
	var fieldsRaw []byte
	var kind string

	switch s.backend {
	case BackendPostgres:
		var vec pgvector.Vector
		var hasVec bool
		if err := rows.Scan(&item.ID, &item.AgentID, &item.RoomID, &item.EntityID, &kind,
			&item.BodyText, &fieldsRaw, scanNullable(&vec, &hasVec), &item.CreatedAt); err != nil {
			return Item{}, err
		}
		if hasVec {
			item.Embedding = fromPGVector(vec)
		}
	default: // BackendSQLite
		var idStr, createdStr string
		var embStr *string
		if err := rows.Scan(&idStr, &item.AgentID, &item.RoomID, &item.EntityID, &kind,
			&item.BodyText, &fieldsRaw, &embStr, &createdStr); err != nil {
			return Item{}, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return Item{}, err
		}
		item.ID = id
		created, err := time.Parse(time.RFC3339Nano, createdStr)
		if err != nil {
			return Item{}, err
		}
		item.CreatedAt = created
		if embStr != nil {
			var emb []float32
			if err := json.Unmarshal([]byte(*embStr), &emb); err != nil {
				return Item{}, err
			}
			item.Embedding = emb
		}
	}

	item.Kind = Kind(kind)
	if len(fieldsRaw) > 0 {
		if err := json.Unmarshal(fieldsRaw, &item.BodyFields); err != nil {
			return Item{}, err
		}
	}
	return item, nil
}

// scanNullable is a thin sql.Scanner adapter so a nullable pgvector column
// can be scanned without failing when the embedding is absent.
func scanNullable(v *pgvector.Vector, hasVal *bool) *nullableVector {
	return &nullableVector{v: v, hasVal: hasVal}
}

type nullableVector struct {
	v      *pgvector.Vector
	hasVal *bool
}

func (n *nullableVector) Scan(src any) error {
	if src == nil {
		*n.hasVal = false
		return nil
	}
	if err := n.v.Scan(src); err != nil {
		return err
	}
	*n.hasVal = true
	return nil
}
