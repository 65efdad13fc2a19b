package core

import (
	"sort"

	"github.com/golang/glog"
)

// findingKey 发现的唯一标识
type findingKey struct {
	Line     int
	Variable string
	Kind     string
	Category Category
}

// ConflictResolver 冲突仲裁器
// 对候选发现做去重与升降级仲裁：同一 (行, 变量) 位置上更具体的诊断
// 抑制更笼统的诊断（比如野指针解引用抑制未使用变量）。
// 它是显式传递的值，由单个文件的分析调用持有，没有进程级单例。
type ConflictResolver struct {
	admitted map[findingKey]*entry
	// 按 (行, 变量) 的索引用于仲裁
	bySite map[siteKey][]*entry
	seq    int
}

type siteKey struct {
	Line     int
	Variable string
}

type entry struct {
	finding Finding
	seq     int // 进入顺序，行号相同者据此稳定排序
	evicted bool
}

// NewConflictResolver 创建空仲裁器
func NewConflictResolver() *ConflictResolver {
	return &ConflictResolver{
		admitted: make(map[findingKey]*entry),
		bySite:   make(map[siteKey][]*entry),
	}
}

// Submit 提交一条候选发现，返回是否被接纳
// 仲裁规则（与提交顺序无关，严重度并列除外）：
//  1. 完全相同的键已存在 -> 拒绝
//  2. 同位置已有严格更高严重度的发现 -> 拒绝（抑制）
//  3. 新发现严格更高 -> 驱逐旧发现并接纳（升级）
//  4. 其余情况接纳
func (r *ConflictResolver) Submit(f Finding) bool {
	key := findingKey{Line: f.Line, Variable: f.Variable, Kind: f.Kind, Category: f.Category}
	if _, dup := r.admitted[key]; dup {
		return false
	}

	site := siteKey{Line: f.Line, Variable: f.Variable}
	rank := RankOf(f.Kind)

	// 无变量归属的发现（如 dead_loop）不参与同位置仲裁
	if f.Variable != "" {
		for _, e := range r.bySite[site] {
			if e.evicted {
				continue
			}
			other := RankOf(e.finding.Kind)
			if other < rank {
				glog.V(2).Infof("finding suppressed: %s by %s (line %d, variable %s)",
					f.Kind, e.finding.Kind, f.Line, f.Variable)
				return false
			}
			if rank < other {
				glog.V(2).Infof("finding upgraded: %s -> %s (line %d, variable %s)",
					e.finding.Kind, f.Kind, f.Line, f.Variable)
				e.evicted = true
				delete(r.admitted, findingKey{
					Line: e.finding.Line, Variable: e.finding.Variable,
					Kind: e.finding.Kind, Category: e.finding.Category,
				})
			}
		}
	}

	r.seq++
	e := &entry{finding: f, seq: r.seq}
	r.admitted[key] = e
	r.bySite[site] = append(r.bySite[site], e)
	return true
}

// Findings 导出接纳的发现：按行号升序，行号相同按提交顺序稳定排列
func (r *ConflictResolver) Findings() []Finding {
	entries := make([]*entry, 0, len(r.admitted))
	for _, e := range r.admitted {
		if !e.evicted {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].finding.Line != entries[j].finding.Line {
			return entries[i].finding.Line < entries[j].finding.Line
		}
		return entries[i].seq < entries[j].seq
	})

	out := make([]Finding, len(entries))
	for i, e := range entries {
		out[i] = e.finding
	}
	return out
}

// Len 当前接纳的发现数
func (r *ConflictResolver) Len() int {
	n := 0
	for _, e := range r.admitted {
		if !e.evicted {
			n++
		}
	}
	return n
}
