// Package streak は連続学習日数（ストリーク）の更新規則を提供する。
//
// 規則は最終アクティビティ日と「今日」だけから決まる純粋関数で、
// ストアに依存せず単体でテストできる。
//
//	最終アクティビティ日なし       → 1日目として開始
//	最終アクティビティ日 = 今日    → 変更なし（同日の再適用は冪等）
//	最終アクティビティ日 = 昨日    → +1
//	それ以外（2日以上空いた・未来日） → 1にリセット
package streak

import "time"

// State は更新前のストリーク状態。
type State struct {
	Days         int
	LastActivity *time.Time
}

// Result は規則適用後の状態。
// Changed がfalseの場合、呼び出し側は永続化を省略してよい。
type Result struct {
	Days         int
	LastActivity time.Time
	Changed      bool
}

// Reconcile は今日のアクティビティを反映した次の状態を返す。
// todayとprev.LastActivityは時刻部分を無視し、暦日として比較する。
func Reconcile(prev State, today time.Time) Result {
	today = Date(today)

	if prev.LastActivity == nil {
		return Result{Days: 1, LastActivity: today, Changed: true}
	}

	last := Date(*prev.LastActivity)
	switch {
	case last.Equal(today):
		return Result{Days: prev.Days, LastActivity: last, Changed: false}
	case last.Equal(today.AddDate(0, 0, -1)):
		days := prev.Days
		if days < 0 {
			days = 0
		}
		return Result{Days: days + 1, LastActivity: today, Changed: true}
	default:
		return Result{Days: 1, LastActivity: today, Changed: true}
	}
}

// Date はtの暦日（年月日）をUTCの0時として返す。
// タイムゾーン変換は行わず、t自身の年月日をそのまま使う。
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today はlocにおける現在日付を返す。locがnilの場合はUTC。
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Date(now.In(loc))
}
