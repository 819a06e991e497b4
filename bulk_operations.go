package rbac

import (
	"context"
	"sync"
)

const bulkWorkers = 10

// BulkPermissionCheck is one user-permission-target triple.
type BulkPermissionCheck struct {
	UserID     string
	Permission string
	Target     CheckContext
}

// BulkPermissionResult represents the result of one bulk permission check
type BulkPermissionResult struct {
	UserID     string
	Permission string
	Result     CheckResult
	Error      error
}

// CheckBulkPermissions runs many checks concurrently. Results line up with
// checks by index.
func (s *RBACService) CheckBulkPermissions(ctx context.Context, checks []BulkPermissionCheck) []BulkPermissionResult {
	results := make([]BulkPermissionResult, len(checks))
	if len(checks) == 0 {
		return results
	}

	workerCount := min(bulkWorkers, len(checks))
	jobs := make(chan int, len(checks))

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				check := checks[idx]
				res, err := s.CheckPermission(ctx, check.UserID, check.Permission, check.Target)
				results[idx] = BulkPermissionResult{
					UserID:     check.UserID,
					Permission: check.Permission,
					Result:     res,
					Error:      err,
				}
			}
		}()
	}

	for i := range checks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// InvalidateUsers drops the snapshots of several users, stopping at the
// first failure.
func (s *RBACService) InvalidateUsers(ctx context.Context, userIDs []string) error {
	for _, id := range userIDs {
		if err := s.InvalidateUser(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
