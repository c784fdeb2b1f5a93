// Package memory implements campaign memory for an AI game master:
// a bounded short-term conversation buffer, a durable long-term store,
// an entity knowledge base, and the Manager that assembles them into
// prompt context.
//
// The Manager is the entry point:
//
//	mgr, err := memory.NewManager(store, llm, memory.DefaultConfig)
//	if err != nil { ... }
//	if err := mgr.Initialize(ctx); err != nil { ... }
//
//	mgr.AddMessage(ctx, memory.RoleUser, "I enter the tavern")
//	c, _ := mgr.GetContext(ctx, "tell me about Borin", memory.DefaultContextOptions)
//	prompt := memory.FormatContextForPrompt(c)
//
// Memory degrades rather than fails: when the language model is
// unreachable, retrieval falls back to keyword matching and
// summarization waits for the next opportunity. Only Initialize
// propagates storage errors; everything else keeps the in-memory state
// authoritative and logs persistence problems.
//
// Semantic retrieval lives in the vector subpackage.
package memory
