package bterr

// Canonical error definitions named directly by the spec's failure modes.
// Registered at init so bterr.Lookup works before any component runs.
var (
	// tsstore
	ErrKeyNotFound = New("TSSTORE", 1001, 404, "key not found in time-series store", "时间序列存储中未找到该键")
	ErrSymbolIsNotMinInterval = New("TSSTORE", 1002, 400, "series interval does not match the strategy's resolved minimum interval", "该序列周期与策略解析出的最小周期不一致")

	// vts
	ErrOrderNotFound         = New("VTS", 1101, 404, "order not found", "未找到该订单")
	ErrUnsupportedOrderType  = New("VTS", 1102, 400, "unsupported order type", "不支持的订单类型")
	ErrKlineKeyNotFound      = New("VTS", 1103, 404, "kline key not found in vts price cache", "虚拟交易系统价格缓存中未找到该K线键")
	ErrEventSendFailed       = New("VTS", 1104, 500, "failed to publish vts event", "虚拟交易系统事件发布失败")

	// node fsm
	ErrInvalidStateTransition = New("NODE_FSM", 1201, 409, "invalid node state transition", "无效的节点状态迁移")

	// kline node
	ErrDataSourceAccountIsNotConfigured = New("KLINE_NODE", 1301, 400, "data source account is not configured", "未配置数据源账户")
	ErrSymbolsIsNotConfigured           = New("KLINE_NODE", 1302, 400, "symbols are not configured", "未配置交易品种")
	ErrTimeRangeIsNotConfigured         = New("KLINE_NODE", 1303, 400, "time range is not configured", "未配置时间区间")
	ErrLoadKlineFromExchangeFailed      = New("KLINE_NODE", 1304, 502, "failed to load kline history from exchange", "从交易所加载历史K线失败")
	ErrInsufficientHistory              = New("KLINE_NODE", 1305, 400, "exchange history does not cover the requested start", "交易所历史数据未覆盖所请求的起始时间")
	ErrKlineTimestampNotEqual           = New("KLINE_NODE", 1306, 500, "kline timestamp does not match expected minimum-interval timestamp", "K线时间戳与预期的最小周期时间戳不一致")

	// indicator node
	ErrCalculateHistoryIndicatorFailed = New("INDICATOR_NODE", 1401, 502, "indicator engine calculation failed", "指标引擎计算失败")

	// backtest strategy / context
	ErrIntervalNotSame       = New("BACKTEST_STRATEGY", 1501, 400, "configured symbols do not share the same minimum interval", "所配置的交易品种最小周期不一致")
	ErrNodeStateNotReady     = New("BACKTEST_STRATEGY", 1502, 409, "node is not in a ready state", "节点状态未就绪")
	ErrStrategyFailed        = New("BACKTEST_STRATEGY", 1503, 500, "strategy has entered the failed state", "策略已进入失败状态")
	ErrGraphParseFailed      = New("BACKTEST_STRATEGY", 1504, 400, "failed to parse strategy graph document", "策略图文档解析失败")

	// cycle driver
	ErrAlreadyPlaying  = New("CYCLE_DRIVER", 1601, 409, "strategy is already playing", "策略已经处于播放状态")
	ErrAlreadyPaused   = New("CYCLE_DRIVER", 1602, 409, "strategy is already paused", "策略已经处于暂停状态")
	ErrPlayIndexOutOfRange = New("CYCLE_DRIVER", 1603, 400, "play index out of range", "播放索引超出范围")

	// exchange client
	ErrExchangeRequestFailed = New("EXCHANGE_CLIENT", 1701, 502, "exchange client request failed", "交易所客户端请求失败")
	ErrIntervalNotSupported  = New("EXCHANGE_CLIENT", 1702, 400, "interval not supported by exchange client", "交易所客户端不支持该周期")

	// config
	ErrConfigInvalid = New("CONFIG", 1801, 400, "configuration is invalid", "配置无效")

	// admin/control API
	ErrStrategyNotFound = New("API", 1901, 404, "strategy not found", "未找到该策略")
)
