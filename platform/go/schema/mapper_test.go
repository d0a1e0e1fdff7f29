package schema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type audit struct {
	ID        uuid.UUID `db:"id"`
	CreatedAt time.Time `db:"created_at"`
}

type author struct {
	audit
	Name  string   `db:"name"`
	Books []book   `rel:"books"`
	note  string   `db:"note"`
	Tags  []string `json:"tags"`
}

type book struct {
	audit
	Title    string          `db:"title"`
	Pages    int32           `db:"pages"`
	Rating   *float64        `db:"rating"`
	Extra    json.RawMessage `db:"extra"`
	Meta     map[string]any  `db:"meta"`
	AuthorID *uuid.UUID      `db:"author_id"`
	Author   *author         `rel:"author"`

	loaded bool
}

func (b *book) AfterLoad() { b.loaded = true }

var (
	authorEntity = MustDeclareEntity("author", EntityOptions{},
		DeclareColumn(PrimaryKey, TypeUUID, ColumnOptions{Primary: true}),
		DeclareColumn("created_at", TypeTime, ColumnOptions{}),
		DeclareColumn("name", TypeString, ColumnOptions{}),
		DeclareRelation(OneToMany, "books", "book", RelationOptions{JoinColumn: "author_id"}),
	)
	bookEntity = MustDeclareEntity("book", EntityOptions{},
		DeclareColumn(PrimaryKey, TypeUUID, ColumnOptions{Primary: true}),
		DeclareColumn("created_at", TypeTime, ColumnOptions{}),
		DeclareColumn("title", TypeString, ColumnOptions{}),
		DeclareColumn("pages", TypeInt, ColumnOptions{}),
		DeclareColumn("rating", TypeFloat, ColumnOptions{Nullable: true}),
		DeclareColumn("extra", TypeJSON, ColumnOptions{Nullable: true}),
		DeclareColumn("meta", TypeJSON, ColumnOptions{Nullable: true}),
		DeclareColumn("author_id", TypeUUID, ColumnOptions{Nullable: true}),
		DeclareRelation(ManyToOne, "author", "author", RelationOptions{JoinColumn: "author_id"}),
	)
)

func TestMapperCovers(t *testing.T) {
	bm, err := NewMapper[book]()
	require.NoError(t, err)
	require.NoError(t, bm.Covers(bookEntity))
	require.Equal(t, []string{"author_id", "created_at", "extra", "id", "meta", "pages", "rating", "title"}, bm.Columns())

	am, err := NewMapper[author]()
	require.NoError(t, err)
	require.NoError(t, am.Covers(authorEntity))

	require.ErrorContains(t, am.Covers(bookEntity), `column "title" has no field`)
	require.ErrorContains(t, bm.Covers(authorEntity), `field for "title" is not a column`)

	type wrongCardinality struct {
		audit
		Name  string `db:"name"`
		Books *book  `rel:"books"`
	}
	wm, err := NewMapper[wrongCardinality]()
	require.NoError(t, err)
	require.ErrorContains(t, wm.Covers(authorEntity), "wrong cardinality")
}

func TestNewMapperRejectsBadTypes(t *testing.T) {
	_, err := NewMapper[string]()
	require.Error(t, err)

	type twice struct {
		A string `db:"a"`
		B string `db:"a"`
	}
	_, err = NewMapper[twice]()
	require.ErrorContains(t, err, `column "a" is mapped twice`)

	type badRelation struct {
		Owner string `rel:"owner"`
	}
	_, err = NewMapper[badRelation]()
	require.ErrorContains(t, err, "must be a struct pointer or slice")
}

func TestMapperRoundTrip(t *testing.T) {
	m, err := NewMapper[book]()
	require.NoError(t, err)

	authorID := uuid.New()
	rating := 4.5
	in := book{
		audit:    audit{ID: uuid.New(), CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		Title:    "Dune",
		Pages:    412,
		Rating:   &rating,
		Extra:    json.RawMessage(`{"isbn":"x"}`),
		AuthorID: &authorID,
	}

	rec := m.ToRecord(&in)
	require.Equal(t, "Dune", rec["title"])
	require.Equal(t, int32(412), rec["pages"])

	normalized, err := bookEntity.NormalizeRecord(rec)
	require.NoError(t, err)
	normalized["meta"] = json.RawMessage(`{"shelf":3}`)
	normalized["author"] = Record{"id": authorID, "name": "Herbert"}

	out, err := m.FromRecord(normalized)
	require.NoError(t, err)
	require.Equal(t, in.ID, out.ID)
	require.Equal(t, in.Title, out.Title)
	require.Equal(t, in.Pages, out.Pages)
	require.Equal(t, rating, *out.Rating)
	require.JSONEq(t, `{"isbn":"x"}`, string(out.Extra))
	require.Equal(t, map[string]any{"shelf": 3.0}, out.Meta)
	require.NotNil(t, out.Author)
	require.Equal(t, "Herbert", out.Author.Name)
	require.True(t, out.loaded)
}

func TestMapperFromRecordRelations(t *testing.T) {
	m, err := NewMapper[author]()
	require.NoError(t, err)

	out, err := m.FromRecord(Record{
		"id":   uuid.New(),
		"name": "Le Guin",
		"books": []Record{
			{"title": "The Dispossessed", "pages": int64(387)},
			{"title": "Lathe of Heaven", "pages": int64(184)},
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Books, 2)
	require.Equal(t, int32(387), out.Books[0].Pages)
	require.True(t, out.Books[1].loaded)

	empty, err := m.FromRecord(Record{"books": []Record{}})
	require.NoError(t, err)
	require.NotNil(t, empty.Books)
	require.Empty(t, empty.Books)

	bm, err := NewMapper[book]()
	require.NoError(t, err)
	orphan, err := bm.FromRecord(Record{"author": Record(nil)})
	require.NoError(t, err)
	require.Nil(t, orphan.Author)
}

func TestMapperFromRecordRejectsMismatches(t *testing.T) {
	m, err := NewMapper[book]()
	require.NoError(t, err)

	_, err = m.FromRecord(Record{"pages": int64(1) << 40})
	require.ErrorContains(t, err, "overflows int32")

	_, err = m.FromRecord(Record{"title": true})
	require.ErrorContains(t, err, `column "title"`)
}
