// Package camera カメラデバイスの監視と差分通知を担う
//
// # 責務
// - 入力フォーマットごとのデバイス列挙（Source）
// - 列挙結果のスナップショット化と差分計算
// - デバイスの追加・削除の通知
// - 定期再同期のスケジュールとライフサイクル管理
// - デバイスからのキャプチャセッションの作成
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 接続中のカメラ一覧を常に最新に保ちたい
// - カメラの抜き差しをイベントとして受け取りたい
// - インデックスやパスでカメラを選んで開きたい
//
// # 仕様
//   - Watcher: スナップショットの保持、再同期、通知、タイマー、破棄
//   - Reconcile: パスの同一性による差分計算（副作用なし）
//   - Source: v4l2（sysfs）、dshow / avfoundation（ffmpeg -list_devices）、mediadevices
//   - FFmpegFactory: ffmpeg 経由の MJPEG キャプチャ
//   - HotplugTrigger: /dev の変化を検知して即時に再同期する
//   - 再同期は直列化され、通知は「追加を全て」→「削除を全て」の順に届く
//   - 通知ハンドラが返したエラーで再同期は中断し、スナップショットは差し替えない
//
// # 前提要件
//   - ffmpeg: dshow / avfoundation の列挙とキャプチャに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//     macOS: brew install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
