package character

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
)

func ada() types.Character {
	return types.Character{
		Name:        "Ada",
		Role:        "pilot",
		Personality: "brave",
		VoiceType:   types.VoiceFemalePidgin,
		Style:       "2D anime",
	}
}

// exerciseStore runs the shared contract against s. s must start empty.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	created, err := s.Save(ctx, ada())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(created.ID, IDPrefix) {
		t.Fatalf("ID=%q", created.ID)
	}

	second := ada()
	second.Name = "Bola"
	second, err = s.Save(ctx, second)
	if err != nil {
		t.Fatalf("Save second: %v", err)
	}

	updated, err := s.Save(ctx, types.Character{ID: created.ID, Style: "claymation"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Ada" || updated.Style != "claymation" || updated.VoiceType != types.VoiceFemalePidgin {
		t.Fatalf("merged=%+v", updated)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil || got != updated {
		t.Fatalf("Get=%+v err=%v", got, err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != created.ID || list[1].ID != second.ID {
		t.Fatalf("List=%+v", list)
	}

	if err := s.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
	if _, err := s.Get(ctx, created.ID); core.TypeOf(err) != core.ErrNotFound {
		t.Fatalf("Get after delete err=%v", err)
	}

	// Unknown ids are inserted as given.
	orphan := ada()
	orphan.ID = "char_imported"
	if _, err := s.Save(ctx, orphan); err != nil {
		t.Fatalf("Save orphan: %v", err)
	}
	if _, err := s.Get(ctx, "char_imported"); err != nil {
		t.Fatalf("Get orphan: %v", err)
	}

	bad := ada()
	bad.VoiceType = "Opera"
	if _, err := s.Save(ctx, bad); core.TypeOf(err) != core.ErrInvalidRequest {
		t.Fatalf("invalid voice err=%v", err)
	}
	if _, err := s.Save(ctx, types.Character{ID: second.ID, VoiceType: "Opera"}); core.TypeOf(err) != core.ErrInvalidRequest {
		t.Fatalf("invalid merge err=%v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_ListIsACopy(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Save(context.Background(), ada()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	list, _ := s.List(context.Background())
	list[0].Name = "mutated"
	again, _ := s.List(context.Background())
	if again[0].Name != "Ada" {
		t.Fatalf("List leaked internal slice")
	}
}

func TestMerge(t *testing.T) {
	base := ada()
	base.ID = "char_1"
	got := Merge(base, types.Character{Name: "  ", Role: "captain"})
	if got.Name != "Ada" || got.Role != "captain" || got.ID != "char_1" {
		t.Fatalf("Merge=%+v", got)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("STUDIO_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("STUDIO_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := NewPostgresPool(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresPool: %v", err)
	}
	defer pool.Close()

	s := NewPostgresStore(pool, nil)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE characters`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	exerciseStore(t, s)
}
