package store

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmaps-engine/internal/domain"
)

func samplePlaces() []domain.Place {
	rating := 4.5
	return []domain.Place{
		{ID: "a", Name: "Gülüş Diş", Location: domain.PlaceLocation{City: "İstanbul", District: "Kadıköy"},
			Details: domain.Details{Rating: &rating}, Metadata: domain.Metadata{SearchTerm: "diş kliniği", RetrievedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}},
		{ID: "b", Name: "Smile Dental", Location: domain.PlaceLocation{City: "İstanbul", District: "Kadıköy"}},
	}
}

func TestJSONSinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	sink, err := NewJSONSink(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)

	ref, err := sink.Save(ctx, samplePlaces(), "dental_clinics_x_batch_2.json")
	require.NoError(t, err)
	assert.FileExists(t, ref)

	got, err := sink.Load(ctx, "dental_clinics_x_batch_2.json")
	require.NoError(t, err)
	assert.Equal(t, samplePlaces(), got)

	names, err := sink.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"dental_clinics_x_batch_2.json"}, names)

	_, err = sink.Load(ctx, "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = sink.Save(ctx, nil, "../escape.json")
	assert.Error(t, err)
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteSinkUpserts(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	sink := NewSQLiteSink(db)

	_, err := sink.Save(ctx, samplePlaces(), "b1.json")
	require.NoError(t, err)
	_, err = sink.Save(ctx, samplePlaces()[:1], "b2.json")
	require.NoError(t, err)

	n, err := sink.CountPlaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := sink.Load(ctx, "b1.json")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	_, err = sink.Load(ctx, "nope.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db.Pool))

	var v int
	require.NoError(t, db.Pool.QueryRow(`PRAGMA user_version;`).Scan(&v))
	assert.Equal(t, schemaVersion, v)
}

func TestRunStore(t *testing.T) {
	ctx := context.Background()
	runs := NewRunStore(openTestDB(t))

	start := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, runs.SaveRun(ctx, Run{ID: "old", Status: "completed", StartedAt: start}))
	end := start.Add(2 * time.Hour)
	require.NoError(t, runs.SaveRun(ctx, Run{
		ID: "new", Status: "running", StartedAt: start.Add(time.Hour), TotalLocations: 3,
		Settings: json.RawMessage(`{"batch_size":20}`),
	}))
	require.NoError(t, runs.SaveRun(ctx, Run{
		ID: "new", Status: "completed", StartedAt: start.Add(time.Hour), FinishedAt: &end,
		CompletedLocations: 3, TotalLocations: 3, ResultsFound: 41, Files: []string{"f1"},
	}))

	list, err := runs.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "completed", list[0].Status)
	assert.Equal(t, 41, list[0].ResultsFound)
	assert.Equal(t, []string{"f1"}, list[0].Files)
	require.NotNil(t, list[0].FinishedAt)
	assert.True(t, end.Equal(*list[0].FinishedAt))

	ok, err := runs.DeleteRun(ctx, "old")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = runs.DeleteRun(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)
}

type fakeDynamo struct {
	items       []map[string]dynamodbtypes.AttributeValue
	unprocessed int
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]dynamodbtypes.WriteRequest{}}
	for table, reqs := range in.RequestItems {
		for i, r := range reqs {
			if f.unprocessed > 0 && i == len(reqs)-1 {
				f.unprocessed--
				out.UnprocessedItems[table] = append(out.UnprocessedItems[table], r)
				continue
			}
			f.items = append(f.items, r.PutRequest.Item)
		}
	}
	return out, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	want := in.ExpressionAttributeValues[":b"].(*dynamodbtypes.AttributeValueMemberS).Value
	out := &dynamodb.ScanOutput{}
	for _, it := range f.items {
		if b, ok := it["batch"].(*dynamodbtypes.AttributeValueMemberS); ok && b.Value == want {
			out.Items = append(out.Items, it)
		}
	}
	return out, nil
}

func TestDynamoSinkChunksAndRetries(t *testing.T) {
	ctx := context.Background()
	fake := &fakeDynamo{unprocessed: 1}
	sink := NewDynamoSink(fake, "places")
	sink.pause = time.Millisecond

	var recs []domain.Place
	for i := 0; i < 30; i++ {
		recs = append(recs, domain.Place{ID: string(rune('a' + i%26)) + string(rune('0'+i/26))})
	}
	ref, err := sink.Save(ctx, recs, "batch.json")
	require.NoError(t, err)
	assert.Equal(t, "dynamodb://places/batch.json", ref)
	assert.Len(t, fake.items, 30)

	var first dynamoItem
	require.NoError(t, attributevalue.UnmarshalMap(fake.items[0], &first))
	assert.Equal(t, "batch.json", first.Batch)

	got, err := sink.Load(ctx, "batch.json")
	require.NoError(t, err)
	assert.Len(t, got, 30)

	_, err = sink.Load(ctx, "other.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, _ := io.ReadAll(in.Body)
	f.objects[*in.Bucket+"/"+*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func TestS3Sink(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}}
	sink := NewS3Sink(fake, "clinics", "/runs/")

	ref, err := sink.Save(ctx, samplePlaces(), "b.json")
	require.NoError(t, err)
	assert.Equal(t, "s3://clinics/runs/b.json", ref)
	assert.Contains(t, fake.objects, "clinics/runs/b.json")

	got, err := sink.Load(ctx, "b.json")
	require.NoError(t, err)
	assert.Equal(t, samplePlaces(), got)

	_, err = sink.Load(ctx, "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewSinkSelectsType(t *testing.T) {
	ctx := context.Background()
	s, err := NewSink(ctx, Options{Type: "json", OutputDir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.Equal(t, TypeJSON, s.Name())

	s, err = NewSink(ctx, Options{Type: "sqlite"}, openTestDB(t))
	require.NoError(t, err)
	assert.Equal(t, TypeSQLite, s.Name())

	_, err = NewSink(ctx, Options{Type: "sqlite"}, nil)
	assert.Error(t, err)
	_, err = NewSink(ctx, Options{Type: "mongo"}, nil)
	assert.Error(t, err)
	_, err = NewSink(ctx, Options{Type: "dynamodb"}, nil)
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	ctx := context.Background()

	js, err := NewJSONSink(t.TempDir())
	require.NoError(t, err)
	inv, err := Describe(ctx, js)
	require.NoError(t, err)
	assert.Equal(t, TypeJSON, inv.Type)
	require.NotNil(t, inv.Files)
	assert.Zero(t, *inv.Files)

	_, err = js.Save(ctx, samplePlaces(), "a.json")
	require.NoError(t, err)
	inv, err = Describe(ctx, js)
	require.NoError(t, err)
	assert.Equal(t, 1, *inv.Files)
	assert.Nil(t, inv.Places)

	ss := NewSQLiteSink(openTestDB(t))
	_, err = ss.Save(ctx, samplePlaces(), "b1.json")
	require.NoError(t, err)
	inv, err = Describe(ctx, ss)
	require.NoError(t, err)
	assert.Equal(t, TypeSQLite, inv.Type)
	require.NotNil(t, inv.Places)
	assert.Equal(t, 2, *inv.Places)

	inv, err = Describe(ctx, NewS3Sink(nil, "bucket", "prefix"))
	require.NoError(t, err)
	assert.Equal(t, Inventory{Type: TypeS3}, inv)
}
