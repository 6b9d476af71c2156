package email

import "fmt"

// Templates groups the subject/body pairs every caller in this repo sends,
// grounded on src/helper/email.rs's send_welcome_email/send_success_email/
// send_failure_email/send_contribution_email and the stage7 finalize
// worker's prediction_success/processing_failure wording.

// Welcome renders the "submission received" email sent when a job is
// first uploaded.
func Welcome(submittedAt, age, ethnicity, sex, height string, weight int, uid, jobID string) (subject, body string) {
	subject = "Welcome to iGait!"
	body = fmt.Sprintf(
		"Your job submission on %s has been uploaded successfully! Please give us 1-2 days to complete analysis.<br><br>"+
			"Submission information:<br>Age: %s<br>Ethnicity: %s<br>Sex: %s<br>Height: %s<br>Weight: %d<br><br>"+
			"User ID: %s<br>Job ID: %s",
		submittedAt, age, ethnicity, sex, height, weight, uid, jobID,
	)
	return subject, body
}

// PredictionSuccess renders the completion email for a job that produced
// a prediction score.
func PredictionSuccess(completedAt string, score float64, isASD bool, age int, ethnicity, sex, height string, weight int, uid, jobID string) (subject, body string) {
	subject = "Your recent submission to iGait App has completed!"
	value := fmt.Sprintf("%.1f%% confidence, ASD indicators %s", score*100, asdWord(isASD))
	body = fmt.Sprintf(
		"We determined a likelihood score of %s for your submission on %s!<br><br>"+
			"Submission information:<br>Age: %d<br>Ethnicity: %s<br>Sex: %s<br>Height: %s<br>Weight: %d<br><br>"+
			"User ID: %s<br>Job ID: %s",
		value, completedAt, age, ethnicity, sex, height, weight, uid, jobID,
	)
	return subject, body
}

// ProcessingFailure renders the failure email sent when a job errors out
// anywhere in the pipeline, naming the stage that failed when known.
func ProcessingFailure(failedAt string, failedStage *int, errMsg, uid, jobID string) (subject, body string) {
	subject = "Your recent submission to iGait App failed!"
	stage := "unknown"
	if failedStage != nil {
		stage = fmt.Sprintf("%d", *failedStage)
	}
	body = fmt.Sprintf(
		"Something went wrong with your submission on %s!<br><br>"+
			"Failed at stage: '%s'<br>Error Reason: '%s'<br><br>User ID: %s<br>Job ID: %s<br><br><br>"+
			"Please contact support:<br>GaitStudy@niu.edu",
		failedAt, stage, errMsg, uid, jobID,
	)
	return subject, body
}

// ContributionReceived thanks a user for contributing data to the
// research study.
func ContributionReceived(name string) (subject, body string) {
	subject = "Thank you for your contribution to iGait!"
	body = fmt.Sprintf(
		"Dear %s!<br><br>Your submission has been successfully received. Thank you for participating in this "+
			"research study. If you have any questions or would like to follow up, please contact "+
			"GaitStudy@niu.edu.<br><br>Thank you for your support!",
		name,
	)
	return subject, body
}

func asdWord(isASD bool) string {
	if isASD {
		return "detected"
	}
	return "not detected"
}
