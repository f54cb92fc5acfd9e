// Package alerts evaluates score alert rules against every new asset score
// and delivers webhook notifications to Teams, Slack, PagerDuty or generic
// HTTP targets when a rule fires or resolves.
//
// Rule conditions are expressions over final_score, age_score, event_score,
// age_years and state, compiled once when the Engine is built.
package alerts
