package dreaming

import (
	"github.com/healer-ai/p8fs/pkg/embedding"
	"github.com/healer-ai/p8fs/pkg/kvstore"
	"github.com/healer-ai/p8fs/pkg/storage"
)

// storageProviders bundles the three backends every sub-pipeline needs to
// open a pkg/repository.Repository, avoiding a four-argument threading of
// the same trio through every pipeline function.
type storageProviders struct {
	Storage    *storage.Provider
	KV         *kvstore.Store
	Embeddings *embedding.Service
}
