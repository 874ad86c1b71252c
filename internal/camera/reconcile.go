package camera

import "github.com/samber/lo"

// Delta は2つのスナップショット間の差分
type Delta struct {
	Added   []DeviceInfo // current にあり previous に無いもの（current の順）
	Removed []DeviceInfo // previous にあり current に無いもの（previous の順）
}

// Empty は差分が無いか返す
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Reconcile は previous から current への差分をパスの同一性で計算する
//
// 副作用は無く、同じ入力には同じ結果を返す。
func Reconcile(previous, current DeviceSet) Delta {
	if previous.Equal(current) {
		return Delta{}
	}

	added := lo.Filter(current.devices, func(d DeviceInfo, _ int) bool {
		return !previous.Contains(d.Path)
	})
	removed := lo.Filter(previous.devices, func(d DeviceInfo, _ int) bool {
		return !current.Contains(d.Path)
	})

	return Delta{Added: added, Removed: removed}
}
