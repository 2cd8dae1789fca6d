package etl

import (
	"context"
)

// countDeleteTargets records the scoped row count of every delete target so
// verify can tell how many rows should be left.
func (p *Pipeline) countDeleteTargets(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, t := range p.Job.Targets {
		if t.Op != OpDelete {
			continue
		}
		n, err := p.Dest.Count(ctx, t.Table, p.Job.Filter)
		if err != nil {
			return counts, err
		}
		counts[t.Table] = n
	}
	return counts, nil
}

// verify re-counts the destination. Upsert targets must hold at least one row
// per migrated source row; delete targets must have lost at least Migrated
// rows. Mismatches are warnings only.
func (p *Pipeline) verify(ctx context.Context, s *Stats, before map[string]int64) []VerifyResult {
	var results []VerifyResult
	for _, t := range p.Job.Targets {
		res := VerifyResult{Table: t.Table, Op: t.Op}
		switch t.Op {
		case OpDelete:
			start, ok := before[t.Table]
			if !ok {
				res.Message = "no count from before the run"
				logClass(ClassVerify, "%s: %s", t.Table, res.Message)
				results = append(results, res)
				continue
			}
			res.Expected = start - s.Migrated
			n, err := p.Dest.Count(ctx, t.Table, p.Job.Filter)
			if err != nil {
				res.Message = err.Error()
				logClass(ClassVerify, "count %s failed: %v", t.Table, err)
				results = append(results, res)
				continue
			}
			res.Actual = n
			res.OK = n <= res.Expected
			if !res.OK {
				res.Message = "rows remain that should have been deleted"
			}
		default:
			res.Expected = s.Migrated
			n, err := p.Dest.Count(ctx, t.Table, nil)
			if err != nil {
				res.Message = err.Error()
				logClass(ClassVerify, "count %s failed: %v", t.Table, err)
				results = append(results, res)
				continue
			}
			res.Actual = n
			res.OK = n >= res.Expected
			if !res.OK {
				res.Message = "fewer destination rows than migrated source rows"
			}
		}

		if res.OK {
			p.log.Infof("Verified %s: expected %d, found %d", t.Table, res.Expected, res.Actual)
		} else {
			logClass(ClassVerify, "%s: expected %d, found %d: %s", t.Table, res.Expected, res.Actual, res.Message)
		}
		results = append(results, res)
	}
	return results
}
