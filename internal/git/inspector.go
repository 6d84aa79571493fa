// Package git reads local repository state with go-git.
package git

import (
	"time"

	gogit "github.com/go-git/go-git/v5"
)

// RepoInspector implements Inspector on go-git.
type RepoInspector struct{}

// NewInspector creates a new RepoInspector
func NewInspector() *RepoInspector {
	return &RepoInspector{}
}

func (RepoInspector) Valid(path string) bool {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return false
	}
	_, err = repo.Head()
	return err == nil
}

func (RepoInspector) HeadRevision(path string) (string, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", err
	}
	return head.Hash().String(), nil
}

func (RepoInspector) CommitTime(path string) (time.Time, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return time.Time{}, err
	}
	head, err := repo.Head()
	if err != nil {
		return time.Time{}, err
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return time.Time{}, err
	}
	return commit.Committer.When, nil
}

func (RepoInspector) IsShallow(path string) (bool, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return false, err
	}
	hashes, err := repo.Storer.Shallow()
	if err != nil {
		return false, err
	}
	return len(hashes) > 0, nil
}
