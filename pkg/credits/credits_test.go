package credits

import "testing"

func TestCountColumns(t *testing.T) {
	col, maxCol, err := countColumns(KindImageGeneration)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if col != "image_generation_count" || maxCol != "max_image_generation_count" {
		t.Fatalf("unexpected columns %q %q", col, maxCol)
	}

	col, maxCol, err = countColumns(KindModelTraining)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if col != "model_training_count" || maxCol != "max_model_training_count" {
		t.Fatalf("unexpected columns %q %q", col, maxCol)
	}

	if _, _, err := countColumns("storage_bytes"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestBalanceRemaining(t *testing.T) {
	b := Balance{ImageGenerationCount: 7, ModelTrainingCount: 2}
	if got := b.Remaining(KindImageGeneration); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := b.Remaining(KindModelTraining); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}
