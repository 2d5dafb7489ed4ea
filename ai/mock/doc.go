// Package mock provides test doubles for the ai interfaces.
//
// MockEmbedder returns deterministic unit vectors derived from an FNV hash of
// the text, so equal texts always embed equally and tests need no external
// service. Behavior can be replaced per test through the function fields.
//
// # Usage in Tests
//
//	provider := mock.NewMockProvider()
//	vector, err := provider.Embedder().EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	embedder := mock.NewMockEmbedderWithDimensions(3)
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("service down")
//	}
//
//	// Inspect what reached the service
//	count := embedder.CallCount()
//	seen := embedder.Texts()
package mock
