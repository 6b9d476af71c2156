// Package jobstore implements the per-user job list and status
// persistence: ensure_user, count_jobs, new_job, update_status, get_job,
// and get_all_jobs, grounded on the original Firebase-RTDB wrapper
// (igait-backend/src/helper/database.rs), rebuilt on internal/rtdb.
//
// Every mutating operation here is read-modify-write over the whole user
// blob, exactly as the original does it: read the user, mutate the jobs
// slice or a job's status, write the user back. Concurrent RMWs on the
// same user can lose an update — this is an accepted hazard (see §4.4 and
// §9), not a bug, because job-list appends only happen at upload time and
// at rerun, both user-initiated and rare enough that last-writer-wins is
// tolerable. A process-local per-uid mutex narrows the window without
// claiming cross-process safety.
package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/igait-niu/igait-pipeline/internal/rtdb"
	"github.com/igait-niu/igait-pipeline/internal/status"
)

// Job is one user submission: patient metadata, notification address,
// creation time, current status, and the manual-review gate.
type Job struct {
	Age              int           `json:"age"`
	Sex              string        `json:"sex"`
	Ethnicity        string        `json:"ethnicity"`
	Height           string        `json:"height"`
	Weight           int           `json:"weight"`
	Email            string        `json:"email"`
	Timestamp        time.Time     `json:"timestamp"`
	Status           status.Status `json:"status"`
	RequiresApproval bool          `json:"requires_approval"`
}

// User is the record stored at users/{uid}: the ordered job list (index =
// position in the slice) and the administrator flag.
type User struct {
	UID           string `json:"uid"`
	Jobs          []Job  `json:"jobs"`
	Administrator bool   `json:"administrator"`
}

func userKey(uid string) string { return fmt.Sprintf("users/%s", uid) }

// Store implements the job-record operations over rtdb.Store.
type Store struct {
	rtdb rtdb.Store

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewStore(r rtdb.Store) *Store {
	return &Store{rtdb: r, locks: make(map[string]*sync.Mutex)}
}

// perUID returns a process-local mutex for uid, narrowing (not
// eliminating) the RMW race on concurrent job-list mutations for the same
// user, per the "implementations may add a per-user mutex" note in §9.
func (s *Store) perUID(uid string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[uid]
	if !ok {
		m = &sync.Mutex{}
		s.locks[uid] = m
	}
	return m
}

func (s *Store) getUser(ctx context.Context, uid string) (User, bool, error) {
	raw, exists, err := s.rtdb.Get(ctx, userKey(uid))
	if err != nil {
		return User{}, false, fmt.Errorf("get user %s: %w", uid, err)
	}
	if !exists {
		return User{}, false, nil
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, false, fmt.Errorf("unmarshal user %s: %w", uid, err)
	}
	return u, true, nil
}

func (s *Store) putUser(ctx context.Context, u User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user %s: %w", u.UID, err)
	}
	if err := s.rtdb.Set(ctx, userKey(u.UID), string(b)); err != nil {
		return fmt.Errorf("put user %s: %w", u.UID, err)
	}
	return nil
}

// EnsureUser creates a user record with an empty job list if uid has none
// yet, so a user's first real submission lands at index 0. Idempotent: if
// the user already exists, its administrator flag is preserved untouched.
func (s *Store) EnsureUser(ctx context.Context, uid string) error {
	lock := s.perUID(uid)
	lock.Lock()
	defer lock.Unlock()

	_, exists, err := s.getUser(ctx, uid)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.putUser(ctx, User{
		UID:           uid,
		Jobs:          []Job{},
		Administrator: false,
	})
}

// CountJobs returns the number of jobs uid has, ensuring the user exists
// first. Returns 0 for an existing user with no jobs.
func (s *Store) CountJobs(ctx context.Context, uid string) (int, error) {
	if err := s.EnsureUser(ctx, uid); err != nil {
		return 0, fmt.Errorf("ensure user: %w", err)
	}
	u, _, err := s.getUser(ctx, uid)
	if err != nil {
		return 0, err
	}
	return len(u.Jobs), nil
}

// NewJob appends job to uid's job list, preserving the administrator flag,
// and returns the new job's index.
func (s *Store) NewJob(ctx context.Context, uid string, job Job) (int, error) {
	if err := s.EnsureUser(ctx, uid); err != nil {
		return 0, fmt.Errorf("ensure user: %w", err)
	}

	lock := s.perUID(uid)
	lock.Lock()
	defer lock.Unlock()

	u, _, err := s.getUser(ctx, uid)
	if err != nil {
		return 0, err
	}
	index := len(u.Jobs)
	u.Jobs = append(u.Jobs, job)
	if err := s.putUser(ctx, u); err != nil {
		return 0, err
	}
	return index, nil
}

// UpdateStatus overwrites the status field of uid's job at index.
func (s *Store) UpdateStatus(ctx context.Context, uid string, index int, st status.Status) error {
	lock := s.perUID(uid)
	lock.Lock()
	defer lock.Unlock()

	u, exists, err := s.getUser(ctx, uid)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("update status: user %s does not exist", uid)
	}
	if index < 0 || index >= len(u.Jobs) {
		return fmt.Errorf("update status: job index %d out of range for user %s", index, uid)
	}
	u.Jobs[index].Status = st
	return s.putUser(ctx, u)
}

// GetJob returns uid's job at index.
func (s *Store) GetJob(ctx context.Context, uid string, index int) (Job, error) {
	u, exists, err := s.getUser(ctx, uid)
	if err != nil {
		return Job{}, err
	}
	if !exists {
		return Job{}, fmt.Errorf("get job: user %s does not exist", uid)
	}
	if index < 0 || index >= len(u.Jobs) {
		return Job{}, fmt.Errorf("get job: index %d out of range for user %s", index, uid)
	}
	return u.Jobs[index], nil
}

// GetAllJobs returns every job belonging to uid.
func (s *Store) GetAllJobs(ctx context.Context, uid string) ([]Job, error) {
	u, exists, err := s.getUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return u.Jobs, nil
}

// GetUser returns the full user record, used by the files/admin
// authorization checks to read the administrator flag.
func (s *Store) GetUser(ctx context.Context, uid string) (User, error) {
	u, exists, err := s.getUser(ctx, uid)
	if err != nil {
		return User{}, err
	}
	if !exists {
		return User{}, fmt.Errorf("get user: %s does not exist", uid)
	}
	return u, nil
}
