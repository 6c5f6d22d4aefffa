package services

const (
	TopicRunImported        = "payroll.run.imported"
	TopicRunReviewed        = "payroll.run.reviewed"
	TopicRunFinalized       = "payroll.run.finalized"
	TopicRunReversed        = "payroll.run.reversed"
	TopicLiabilitiesBuilt   = "payroll.liabilities.built"
	TopicPaymentBatchLinked = "payroll.payment_batch.linked"
	TopicSettlementApplied  = "payroll.settlement.applied"
	TopicCorrectionCreated  = "payroll.correction.created"
	TopicMappingChanged     = "payroll.mapping.changed"
)
