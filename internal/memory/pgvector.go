package memory

import (
	"github.com/pgvector/pgvector-go"
)

// toPGVector converts a raw embedding to the wire type pgx encodes against
// the `vector` column. A nil/empty embedding encodes as SQL NULL by the
// caller checking len(embedding) == 0 before binding this.
func toPGVector(embedding []float32) pgvector.Vector {
	return pgvector.NewVector(embedding)
}

func fromPGVector(v pgvector.Vector) []float32 {
	return v.Slice()
}
