// Package server は、カメラ監視の状態を HTTP で公開します。
//
// このパッケージは、camera.Watcher をラップして REST API、
// デバイスイベントのストリーム配信、静止画と MJPEG の配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - デバイス一覧と監視状態の取得、手動再同期、監視の開始と停止
//   - デバイスの追加・削除・エラーを Server-Sent Events と WebSocket で配信
//   - 指定デバイスの静止画（JPEG）と MJPEG ストリームの配信
//   - Prometheus メトリクスの公開
//
// 仕様:
//   - ルーティングは gin を使用
//   - WebSocket は gorilla/websocket を使用
//   - イベントは EventHub が購読者ごとのバッファ付きチャネルに配る
//   - 受信が追いつかない購読者へのイベントは捨てる
package server
