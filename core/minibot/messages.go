package minibot

const (
	msgBanned  = "Your account has been restricted on this platform."
	msgFailed  = "Something went wrong. Please try again later."
	msgAdmin   = "This command is available to bot admins only."
	msgOwner   = "Only the bot owner can do that."
	msgNothing = "Nothing to cancel."
	msgCancel  = "Cancelled."

	msgQuickWelcome  = "Welcome to {bot_name}, {first_name}!\n\nSend a message and the team will get back to you."
	msgCustomWelcome = "Welcome to {bot_name}, {first_name}!"

	msgFeedbackSent = "Your message has been sent. The team will reply here."
	msgMediaAdmin   = "Media is only forwarded from users. Use /dashboard to manage the bot."

	msgBroadcastAsk   = "Send the message to broadcast to every user of this bot, or /cancel."
	msgBroadcastEmpty = "This bot has no users to broadcast to yet."

	msgReplyAsk      = "Send your reply to %s, or /cancel."
	msgReplyDone     = "Reply delivered."
	msgReplyFailed   = "The reply could not be delivered: %s"
	msgReplyInactive = "The bot this message came from is not active, so the reply cannot be delivered."
	msgReplyMissing  = "That message no longer exists."
	msgReplyAnswered = "This message was already answered. You can still send another reply."

	msgAdminAsk         = "Send the numeric Telegram user id of the new admin, or /cancel."
	msgAdminBadID       = "That is not a valid user id. Send digits only, or /cancel."
	msgAdminAdded       = "User %d is now an admin of this bot."
	msgAdminSelf        = "You already own this bot."
	msgAdminRemoved     = "User %d is no longer an admin."
	msgAdminNone        = "This bot has no admins besides you. Use /addadmin to add one."
	msgAdminRemoveAsk   = "Choose the admin to remove:"
	msgAdminRemoveUsage = "Send /removeadmin followed by the numeric user id, or /removeadmin alone to pick from a list."

	msgWelcomeAsk   = "Send the new welcome message. Use {first_name} and {bot_name} as placeholders. Send - to restore the default, or /cancel."
	msgWelcomeSaved = "Welcome message updated."
	msgWelcomeReset = "Welcome message restored to the default."
)
