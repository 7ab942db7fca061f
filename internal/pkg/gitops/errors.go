package gitops

import "errors"

// 哨兵错误, 上层通过 errors.Is 判定后映射为业务错误码

// ErrRefNotFound 分支或commit在远端/本地对象库中不存在
var ErrRefNotFound = errors.New("引用不存在")

// ErrAuthFailed 远端认证失败（凭据缺失、无效或无权限）
var ErrAuthFailed = errors.New("Git认证失败")

// ErrRemoteUnavailable 远端不可达或仓库不存在
var ErrRemoteUnavailable = errors.New("Git远端不可用")
