package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"fsubbot/pkg/logx"
)

// fileStore keeps everything in memory and persists it as:
//   - <prefix>.snapshot.json (full state, rewritten on compaction)
//   - <prefix>.journal.jsonl (append-only ops since the last snapshot)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	writes       int
	compactEvery int

	state fileState
}

type fileState struct {
	Groups  map[int64]Group          `json:"groups"`
	Users   map[int64]User           `json:"users"`
	Pending map[string]PendingUnmute `json:"pending"`
}

type journalOp string

const (
	opPutGroup      journalOp = "group.put"
	opDeleteGroup   journalOp = "group.delete"
	opSetDelay      journalOp = "group.delay"
	opPutUser       journalOp = "user.put"
	opPutPending    journalOp = "pending.put"
	opDeletePending journalOp = "pending.delete"
)

type journalRecord struct {
	Op      journalOp      `json:"op"`
	Group   *Group         `json:"group,omitempty"`
	User    *User          `json:"user,omitempty"`
	Pending *PendingUnmute `json:"pending,omitempty"`
	GroupID int64          `json:"group_id,omitempty"`
	UserID  int64          `json:"user_id,omitempty"`
	Delay   int            `json:"delay,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "./data/fsubbot.json"
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	s := &fileStore{
		log:          log,
		snapshotPath: prefix + ".snapshot.json",
		compactEvery: 500,
		state:        newFileState(),
	}
	if err := loadSnapshot(s.snapshotPath, &s.state); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	journalPath := prefix + ".journal.jsonl"
	replayed, err := replayJournal(journalPath, &s.state)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	if replayed > 0 {
		if err := s.compactLocked(); err != nil {
			log.Warn("journal compaction failed", logx.Err(err))
		}
	}
	log.Info("file store opened",
		logx.String("path", s.snapshotPath),
		logx.Int("groups", len(s.state.Groups)),
		logx.Int("users", len(s.state.Users)),
		logx.Int("pending", len(s.state.Pending)))
	return s, nil
}

func newFileState() fileState {
	return fileState{
		Groups:  map[int64]Group{},
		Users:   map[int64]User{},
		Pending: map[string]PendingUnmute{},
	}
}

func pendingKey(groupID, userID int64) string {
	b, _ := json.Marshal([2]int64{groupID, userID})
	return string(b)
}

func (st *fileState) apply(r journalRecord) {
	switch r.Op {
	case opPutGroup:
		if r.Group != nil {
			st.Groups[r.Group.GroupID] = *r.Group
		}
	case opDeleteGroup:
		delete(st.Groups, r.GroupID)
	case opSetDelay:
		if g, ok := st.Groups[r.GroupID]; ok {
			g.UnmuteDelay = r.Delay
			st.Groups[r.GroupID] = g
		}
	case opPutUser:
		if r.User != nil {
			st.Users[r.User.UserID] = *r.User
		}
	case opPutPending:
		if r.Pending != nil {
			st.Pending[pendingKey(r.Pending.GroupID, r.Pending.UserID)] = *r.Pending
		}
	case opDeletePending:
		delete(st.Pending, pendingKey(r.GroupID, r.UserID))
	}
}

// commitLocked journals r and applies it to the in-memory state.
func (s *fileStore) commitLocked(r journalRecord) error {
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	s.state.apply(r)
	s.writes++
	if s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compaction failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) PutGroup(ctx context.Context, g Group) error {
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(journalRecord{Op: opPutGroup, Group: &g})
}

func (s *fileStore) GetGroup(ctx context.Context, groupID int64) (Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.state.Groups[groupID]
	if !ok {
		return Group{}, ErrNotFound
	}
	return g, nil
}

func (s *fileStore) DeleteGroup(ctx context.Context, groupID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Groups[groupID]; !ok {
		return false, nil
	}
	return true, s.commitLocked(journalRecord{Op: opDeleteGroup, GroupID: groupID})
}

func (s *fileStore) SetUnmuteDelay(ctx context.Context, groupID int64, seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Groups[groupID]; !ok {
		return ErrNotFound
	}
	return s.commitLocked(journalRecord{Op: opSetDelay, GroupID: groupID, Delay: seconds})
}

func (s *fileStore) GroupIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.state.Groups), nil
}

func (s *fileStore) CountGroups(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Groups), nil
}

func (s *fileStore) PutUser(ctx context.Context, u User) error {
	if u.LastInteraction.IsZero() {
		u.LastInteraction = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(journalRecord{Op: opPutUser, User: &u})
}

func (s *fileStore) UserIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.state.Users), nil
}

func (s *fileStore) CountUsers(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Users), nil
}

func (s *fileStore) PutPendingUnmute(ctx context.Context, p PendingUnmute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(journalRecord{Op: opPutPending, Pending: &p})
}

func (s *fileStore) DeletePendingUnmute(ctx context.Context, groupID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Pending[pendingKey(groupID, userID)]; !ok {
		return nil
	}
	return s.commitLocked(journalRecord{Op: opDeletePending, GroupID: groupID, UserID: userID})
}

func (s *fileStore) PendingUnmutes(ctx context.Context) ([]PendingUnmute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingUnmute, 0, len(s.state.Pending))
	for _, p := range s.state.Pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (s *fileStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	_, err := s.journal.Stat()
	return err
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

// compactLocked rewrites the snapshot and truncates the journal.
func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.state); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

func loadSnapshot(path string, st *fileState) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap fileState
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for k, v := range snap.Groups {
		st.Groups[k] = v
	}
	for k, v := range snap.Users {
		st.Users[k] = v
	}
	for k, v := range snap.Pending {
		st.Pending[k] = v
	}
	return nil
}

func replayJournal(path string, st *fileState) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var r journalRecord
		// A torn last line after a crash is skipped.
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Op == "" {
			continue
		}
		st.apply(r)
		n++
	}
	return n, sc.Err()
}

func sortedKeys[V any](m map[int64]V) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
