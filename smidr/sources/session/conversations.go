package session

import "sync"

// maxRunsPerConversation bounds how many run handles a session remembers.
// The oldest handle is forgotten first and polls for it then report not found.
const maxRunsPerConversation = 64

// Outcome is the frozen result of a run that reached a terminal status.
type Outcome struct {
	Status    string
	Reply     string
	HasReply  bool
	LastError string
}

type conversation struct {
	threadID string
	runs     map[string]*Outcome
	order    []string
}

// Conversations binds a session token to its provider thread and the runs it
// submitted. Entries are dropped together with the session.
type Conversations struct {
	mu    sync.Mutex
	byTok map[string]*conversation
}

func NewConversations() *Conversations {
	return &Conversations{byTok: make(map[string]*conversation)}
}

// Thread returns the thread bound to token, if any.
func (c *Conversations) Thread(token string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.byTok[token]
	if !ok || conv.threadID == "" {
		return "", false
	}
	return conv.threadID, true
}

// BindThread records threadID for token. An existing binding is kept.
func (c *Conversations) BindThread(token, threadID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv := c.get(token)
	if conv.threadID == "" {
		conv.threadID = threadID
	}
	return conv.threadID
}

// AddRun remembers runID as submitted by token on its current thread.
func (c *Conversations) AddRun(token, runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv := c.get(token)
	if _, ok := conv.runs[runID]; ok {
		return
	}
	conv.runs[runID] = nil
	conv.order = append(conv.order, runID)
	if len(conv.order) > maxRunsPerConversation {
		oldest := conv.order[0]
		conv.order = conv.order[1:]
		delete(conv.runs, oldest)
	}
}

// Run looks up a run submitted by token. outcome is nil until Finish is called.
func (c *Conversations) Run(token, runID string) (threadID string, outcome *Outcome, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, found := c.byTok[token]
	if !found || conv.threadID == "" {
		return "", nil, false
	}
	out, known := conv.runs[runID]
	if !known {
		return "", nil, false
	}
	if out != nil {
		copied := *out
		out = &copied
	}
	return conv.threadID, out, true
}

// Finish freezes the terminal outcome of runID. The first outcome wins.
func (c *Conversations) Finish(token, runID string, outcome Outcome) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, found := c.byTok[token]
	if !found {
		return outcome
	}
	existing, known := conv.runs[runID]
	if !known {
		return outcome
	}
	if existing != nil {
		return *existing
	}
	conv.runs[runID] = &outcome
	return outcome
}

// Drop forgets everything bound to token.
func (c *Conversations) Drop(token string) {
	c.mu.Lock()
	delete(c.byTok, token)
	c.mu.Unlock()
}

func (c *Conversations) get(token string) *conversation {
	conv, ok := c.byTok[token]
	if !ok {
		conv = &conversation{runs: make(map[string]*Outcome)}
		c.byTok[token] = conv
	}
	return conv
}
