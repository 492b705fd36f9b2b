package compiler

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/aionnetwork/fastvm/core/evmjit/ir"
)

// cacheKey identifies a compiled module: the same bytecode compiles
// differently under another revision or call mode.
type cacheKey struct {
	hash   common.Hash
	rev    Revision
	static bool
}

// ModuleCache keeps compiled modules keyed by code hash and compile
// config, so recompiling a hot contract is free. Modules are immutable
// once compiled.
type ModuleCache struct {
	modules *lru.Cache[cacheKey, *ir.Module]
}

const moduleCacheCap = 1024

var moduleCache = &ModuleCache{
	modules: lru.NewCache[cacheKey, *ir.Module](moduleCacheCap),
}

func getModuleCacheInstance() *ModuleCache { return moduleCache }

func (c *ModuleCache) Get(key cacheKey) *ir.Module {
	mod, _ := c.modules.Get(key)
	return mod
}

func (c *ModuleCache) Add(key cacheKey, mod *ir.Module) {
	c.modules.Add(key, mod)
}

func (c *ModuleCache) Remove(key cacheKey) {
	c.modules.Remove(key)
}

func (c *ModuleCache) Len() int { return c.modules.Len() }

// CodeHash is the cache key of a bytecode blob.
func CodeHash(code []byte) common.Hash {
	return crypto.Keccak256Hash(code)
}
